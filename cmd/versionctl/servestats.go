package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/cachestats"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// handleServeStats implements `serve-stats [--schedule CRON]` (SPEC_FULL.md
// §1's `robfig/cron` row): a long-running ambient ops process that logs
// Content-Addressed Store size/age snapshots on a schedule, until
// interrupted. Cache pruning itself stays manual (spec §9 Open Questions);
// this only observes.
func (e *environment) handleServeStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	schedule := fs.String("schedule", "@every 1h", "Standard 5-field cron expression (or @every Nh/Nm) for the reporting cadence")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing serve-stats flags", err)
	}

	reporter := cachestats.NewReporter(e.cfg.SourcesDir(), e.cfg.ModelsCacheDir(), e.log)
	if err := reporter.Start(*schedule); err != nil {
		return errs.Wrap(errs.KindUsage, "starting cache-stats schedule", err)
	}
	defer reporter.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	return nil
}

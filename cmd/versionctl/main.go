// Command versionctl is the Version CLI (spec §4.7, C7): a thin dispatcher
// over the Spec Resolver, Realizer and Job Handler for local/manual use.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/buildinfo"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/config"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		var ee *errs.EngineError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, errs.Line(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(errs.ExitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	root := flag.NewFlagSet("versionctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	showVersion := root.Bool("version", false, "Print versionctl build information and exit")
	if err := root.Parse(args); err != nil {
		printRootUsage()
		return errs.Wrap(errs.KindUsage, "parsing global flags", err)
	}
	if *showVersion {
		fmt.Println(buildinfo.Full())
		return nil
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		printRootUsage()
		return errs.New(errs.KindUsage, "no command specified")
	}

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindUsage, "loading configuration", err)
	}
	log := logging.New(cfg.Logging)
	env := &environment{cfg: cfg, log: log}

	switch remaining[0] {
	case "create":
		return env.handleCreate(ctx, remaining[1:])
	case "validate":
		return env.handleValidate(ctx, remaining[1:])
	case "realize":
		return env.handleRealize(ctx, remaining[1:])
	case "run-ui":
		return env.handleRunUI(ctx, remaining[1:])
	case "run-handler":
		return env.handleRunHandler(ctx, remaining[1:])
	case "clone":
		return env.handleClone(ctx, remaining[1:])
	case "delete":
		return env.handleDelete(ctx, remaining[1:])
	case "serve-stats":
		return env.handleServeStats(ctx, remaining[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return errs.New(errs.KindUsage, fmt.Sprintf("unknown command %q", remaining[0]))
	}
}

func printRootUsage() {
	fmt.Println(`versionctl - Engine version-control and deployment CLI

Usage:
  versionctl create <version_id> --engine URL[@ref] [--extension URL[@ref]]... [--model URI]...
  versionctl validate <version_id>
  versionctl realize <version_id> [--target DIR] [--offline] [--wheels-dir DIR] [--dry-run]
  versionctl run-ui <version_id> [--host HOST] [--port PORT] [-- extra engine args]
  versionctl run-handler <version_id> --workflow FILE [--output base64|object] [--out-file FILE]
  versionctl clone <src_id> <dst_id>
  versionctl delete <version_id> [--remove-spec] [--remove-models-symlinks]
  versionctl serve-stats [--schedule CRON]
  versionctl --version`)
}

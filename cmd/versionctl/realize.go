package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// handleRealize implements `realize <version_id> [--target DIR] [--offline]
// [--wheels-dir DIR] [--dry-run]` (spec §4.7): materialize a previously
// validated Lock into a Workspace.
func (e *environment) handleRealize(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "realize requires a version_id")
	}
	versionID := args[0]

	fs := flag.NewFlagSet("realize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	target := fs.String("target", "", "Workspace directory (default: $ENGINE_HOME/<version_id>)")
	offline := fs.Bool("offline", e.cfg.Offline, "Run offline, failing if any uncached source/model is needed")
	dryRun := fs.Bool("dry-run", false, "Print the plan without touching the filesystem")
	wheelsDir := fs.String("wheels-dir", "", "Local wheel cache directory for pip install (passed through to the Environment Builder)")
	overwrite := fs.Bool("overwrite", false, "Allow clobbering a non-symlink already present at a source/model projection path")
	if err := fs.Parse(args[1:]); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing realize flags", err)
	}

	lock, err := specmodel.LoadLock(e.cfg.LockPath(versionID))
	if err != nil {
		return err
	}

	workspaceDir := *target
	if workspaceDir == "" {
		workspaceDir = e.cfg.WorkspaceDir(versionID)
	}

	realizer := e.realizer(*offline)
	res, err := realizer.Realize(ctx, lock, realize.Options{
		WorkspaceDir: workspaceDir,
		DryRun:       *dryRun,
		Offline:      *offline,
		SkipModels:   lock.Options.SkipModels,
		WheelsDir:    *wheelsDir,
		Overwrite:    *overwrite,
	})
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Printf("warning[%s]: %s\n", w.Phase, w.Message)
	}
	if *dryRun {
		fmt.Printf("plan: %+v\n", res.Plan)
		return nil
	}
	fmt.Println(res.WorkspaceDir)
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
)

// handleDelete implements `delete <version_id> [--remove-spec]
// [--remove-models-symlinks]` (spec §4.7): remove a version's workspace and
// Lock, optionally its Spec. Safety invariant: refuses to remove a
// workspace directory that doesn't carry a completed-realization marker,
// since that directory might not be this engine's to remove.
func (e *environment) handleDelete(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "delete requires a version_id")
	}
	versionID := args[0]

	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	removeSpec := fs.Bool("remove-spec", false, "Also remove the VersionSpec file")
	removeModelsSymlinks := fs.Bool("remove-models-symlinks", false, "Also remove the workspace's models/ projection")
	if err := fs.Parse(args[1:]); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing delete flags", err)
	}

	workspaceDir := e.cfg.WorkspaceDir(versionID)
	if info, err := os.Stat(workspaceDir); err == nil && info.IsDir() {
		if !realize.HasMarker(workspaceDir) {
			return errs.New(errs.KindUsage,
				fmt.Sprintf("refusing to remove %s: no env_marker found, this may not be a realized workspace", workspaceDir))
		}
		if *removeModelsSymlinks {
			if err := os.RemoveAll(workspaceDir + "/models"); err != nil {
				return errs.Wrap(errs.KindInternal, "removing models projection", err)
			}
		}
		if err := os.RemoveAll(workspaceDir); err != nil {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("removing workspace %s", workspaceDir), err)
		}
	} else if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("stat %s", workspaceDir), err)
	}

	lockPath := e.cfg.LockPath(versionID)
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("removing lock %s", lockPath), err)
	}

	if *removeSpec {
		specPath := e.cfg.SpecPath(versionID)
		if err := os.Remove(specPath); err != nil && !os.IsNotExist(err) {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("removing spec %s", specPath), err)
		}
	}

	fmt.Printf("deleted %s\n", versionID)
	return nil
}

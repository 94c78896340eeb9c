package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// handleClone implements `clone <src_id> <dst_id>` (spec §4.7): copy a
// VersionSpec under a new version_id. Locks and workspaces are never
// copied — the destination must go through validate/realize on its own,
// since a Lock's digest and an env_marker are both keyed to their own
// version_id.
func (e *environment) handleClone(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errs.New(errs.KindUsage, "clone requires a src_id and a dst_id")
	}
	srcID, dstID := args[0], args[1]

	src, err := specmodel.LoadSpec(e.cfg.SpecPath(srcID))
	if err != nil {
		return err
	}

	dstPath := e.cfg.SpecPath(dstID)
	if _, err := os.Stat(dstPath); err == nil {
		return errs.New(errs.KindUsage, fmt.Sprintf("spec already exists for %s", dstID))
	}

	clone := *src
	clone.VersionID = dstID
	if err := clone.Validate(); err != nil {
		return err
	}
	if err := writeSpec(dstPath, &clone); err != nil {
		return err
	}
	fmt.Println(dstPath)
	return nil
}

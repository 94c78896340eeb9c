package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// handleValidate implements `validate <version_id>` (spec §4.7): run the
// Spec Resolver, write the Lock, print the Realizer's dry-run plan.
func (e *environment) handleValidate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "validate requires a version_id")
	}
	versionID := args[0]

	spec, err := specmodel.LoadSpec(e.cfg.SpecPath(versionID))
	if err != nil {
		return err
	}

	lock, err := e.resolveSpec(ctx, spec, false)
	if err != nil {
		return err
	}
	if err := specmodel.WriteLock(e.cfg.LockPath(versionID), lock); err != nil {
		return err
	}

	realizer := e.realizer(false)
	res, err := realizer.Realize(ctx, lock, realize.Options{
		WorkspaceDir: e.cfg.WorkspaceDir(versionID),
		DryRun:       true,
	})
	if err != nil {
		return err
	}

	plan, err := json.MarshalIndent(res.Plan, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding plan", err)
	}
	fmt.Println(string(plan))
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/jobhandler"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// handleRunHandler implements `run-handler <version_id> --workflow FILE
// [--output base64|object] [--out-file FILE]` (spec §4.7): realize, then
// run exactly one job headlessly through the Job Handler and print (or
// save) its result.
func (e *environment) handleRunHandler(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "run-handler requires a version_id")
	}
	versionID := args[0]

	fs := flag.NewFlagSet("run-handler", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	workflowPath := fs.String("workflow", "", "Path to the workflow graph JSON (required)")
	outputMode := fs.String("output", e.cfg.OutputMode, "base64 or object")
	outFile := fs.String("out-file", "", "Write the job response JSON here instead of stdout")
	overwrite := fs.Bool("overwrite", false, "Allow clobbering a non-symlink already present at a source/model projection path")
	if err := fs.Parse(args[1:]); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing run-handler flags", err)
	}
	if *workflowPath == "" {
		return errs.New(errs.KindUsage, "--workflow is required")
	}

	lock, err := specmodel.LoadLock(e.cfg.LockPath(versionID))
	if err != nil {
		return err
	}

	workflow, err := os.ReadFile(*workflowPath)
	if err != nil {
		return errs.Wrap(errs.KindUsage, "reading --workflow", err)
	}

	payload := &jobhandler.Payload{
		VersionID:  versionID,
		Workflow:   workflow,
		OutputMode: *outputMode,
	}
	if *outputMode == "object" {
		payload.ObjectBucket = e.cfg.Uploader.Bucket
		payload.ObjectPrefix = e.cfg.Uploader.Prefix
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	h := jobhandler.New(jobhandler.Deps{
		Realizer:  e.realizer(e.cfg.Offline),
		Fetcher:   e.fetcher(),
		Uploader:  e.uploader(),
		Log:       e.log,
		Overwrite: *overwrite,
	})

	resp := h.Handle(ctx, lock, e.cfg.WorkspaceDir(versionID), payload)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding job response", err)
	}
	if *outFile != "" {
		if err := os.WriteFile(*outFile, out, 0o644); err != nil {
			return errs.Wrap(errs.KindInternal, "writing --out-file", err)
		}
	} else {
		os.Stdout.Write(out)
		os.Stdout.Write([]byte("\n"))
	}
	if resp.Error != nil {
		return errs.New(errs.Kind(resp.Error.Kind), resp.Error.Message)
	}
	return nil
}

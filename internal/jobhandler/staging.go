package jobhandler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
)

// StagedInput is one materialized job input: the logical name referenced
// by the graph, mapped to the request-unique filename actually written
// under <workspace>/input/ (spec §3, "Request context").
type StagedInput struct {
	LogicalName      string
	MaterializedName string
	Path             string
}

// stageInputs fetches every merged image into <workspace>/input/ under a
// request-unique name (spec §4.8 step 2): "<request_id>_<rand8>_<name>".
func stageInputs(ctx context.Context, f *fetch.Fetcher, workspaceDir, requestID string, images map[string]string) ([]StagedInput, error) {
	inputDir := filepath.Join(workspaceDir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", inputDir), err)
	}

	staged := make([]StagedInput, 0, len(images))
	for name, url := range images {
		materialized := fmt.Sprintf("%s_%s_%s", requestID, rand8(), name)
		dest := filepath.Join(inputDir, materialized)

		srcPath, err := f.Fetch(ctx, url, "")
		if err != nil {
			return staged, err
		}
		if err := copyFile(srcPath, dest); err != nil {
			return staged, err
		}

		staged = append(staged, StagedInput{LogicalName: name, MaterializedName: materialized, Path: dest})
	}
	return staged, nil
}

// cleanupStagedInputs deletes exactly the files staged for one request, as
// recorded in staged (each named with that request's request_id prefix,
// spec §4.8 step 6), never touching other requests' files.
func cleanupStagedInputs(staged []StagedInput) {
	for _, s := range staged {
		os.Remove(s.Path)
	}
}

func rand8() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("reading %s", src), err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("writing %s", dest), err)
	}
	return nil
}

// stagedMap projects staged inputs into a logical-name -> materialized-name
// map for the graph rewriter.
func stagedMap(staged []StagedInput) map[string]string {
	m := make(map[string]string, len(staged))
	for _, s := range staged {
		m[s.LogicalName] = s.MaterializedName
	}
	return m
}

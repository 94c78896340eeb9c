package jobhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/PaesslerAG/jsonpath"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/engineclient"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// loadWorkflow returns the raw graph JSON from the payload, fetching
// workflow_url when the inline workflow is absent (spec §6: "exactly one
// of workflow|workflow_url").
func (h *Handler) loadWorkflow(ctx context.Context, payload *Payload) ([]byte, error) {
	if len(payload.Workflow) > 0 {
		return payload.Workflow, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.WorkflowURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, "building workflow_url request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "fetching workflow_url", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindNetwork, fmt.Sprintf("workflow_url returned status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "reading workflow_url body", err)
	}
	return data, nil
}

// execute launches the Engine against workspaceDir, submits the rewritten
// graph, waits for completion, and returns the absolute path of the
// produced artifact: the one selected by payload.OutputJSONPath when set,
// else "the primary produced artifact" (spec §4.8 step 4's default, the
// first image or gif found across output nodes).
func (h *Handler) execute(ctx context.Context, workspaceDir string, graphJSON []byte, requestID string, payload *Payload) (string, error) {
	proc, err := LaunchEngine(ctx, workspaceDir, h.deps.EngineHost, h.enginePort())
	if err != nil {
		return "", err
	}
	defer proc.Terminate()

	client := engineclient.New(proc.BaseURL(), h.deps.Log)
	if err := client.WaitReady(ctx, h.deps.ReadyTimeout, h.deps.PollInterval); err != nil {
		return "", err
	}

	var graph map[string]interface{}
	if err := json.Unmarshal(graphJSON, &graph); err != nil {
		return "", errs.Wrap(errs.KindValidation, "decoding rewritten graph", err)
	}

	qr, err := client.SubmitGraph(ctx, graph, requestID)
	if err != nil {
		return "", err
	}

	entry, err := client.WaitForCompletion(ctx, qr.PromptID, h.deps.PollInterval)
	if err != nil {
		return "", err
	}

	if payload.OutputJSONPath != "" {
		return selectOutputByPath(workspaceDir, entry, payload.OutputJSONPath)
	}

	for _, out := range entry.Outputs {
		if len(out.Images) > 0 {
			img := out.Images[0]
			return filepath.Join(workspaceDir, "output", img.Subfolder, img.Filename), nil
		}
		if len(out.Gifs) > 0 {
			g := out.Gifs[0]
			return filepath.Join(workspaceDir, "output", g.Subfolder, g.Filename), nil
		}
	}
	return "", errs.New(errs.KindEngineExec, "engine reported completion with no output artifacts")
}

// selectOutputByPath runs expr against entry's outputs (round-tripped
// through JSON into a generic map, since node ids and output kinds vary
// per graph) and expects the result to be a {filename, subfolder} object,
// the shape the Engine's own history API uses for every image/gif entry.
func selectOutputByPath(workspaceDir string, entry *engineclient.HistoryEntry, expr string) (string, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "encoding history entry for jsonpath", err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", errs.Wrap(errs.KindInternal, "decoding history entry for jsonpath", err)
	}

	result, err := jsonpath.Get(expr, data)
	if err != nil {
		return "", errs.Wrap(errs.KindUsage, fmt.Sprintf("evaluating output_jsonpath %q", expr), err)
	}
	obj, ok := result.(map[string]interface{})
	if !ok {
		return "", errs.New(errs.KindUsage, fmt.Sprintf("output_jsonpath %q did not select a single image/gif object", expr))
	}
	filename, _ := obj["filename"].(string)
	subfolder, _ := obj["subfolder"].(string)
	if filename == "" {
		return "", errs.New(errs.KindUsage, fmt.Sprintf("output_jsonpath %q selected an object with no filename", expr))
	}
	return filepath.Join(workspaceDir, "output", subfolder, filename), nil
}

// enginePort is fixed per workspace for now; a future revision may derive
// it from a small free-port pool to allow multiple concurrent workers on
// one host.
func (h *Handler) enginePort() int {
	if h.deps.EnginePortBase != 0 {
		return h.deps.EnginePortBase
	}
	return 8188
}

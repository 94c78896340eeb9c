// Package jobhandler implements the Job Handler (spec §4.8): the
// serverless worker that realizes a version, stages job inputs, rewrites
// and submits the graph to a launched Engine, delivers the result, and
// always cleans up its staged inputs.
package jobhandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// State is one node of the job state machine of spec §4.8:
// received -> realizing -> staging -> executing -> uploading -> done, with
// any step able to transition to failed(kind).
type State string

const (
	StateReceived  State = "received"
	StateRealizing State = "realizing"
	StateStaging   State = "staging"
	StateExecuting State = "executing"
	StateUploading State = "uploading"
	StateDone      State = "done"
)

// Deps bundles the components a Handler needs, built once at process
// startup and passed by value down to every job (spec §9: "a single config
// struct materialized once at startup; all components receive it by
// value; no globals" — the same discipline applied here to Deps, which
// wraps handles rather than raw config but is likewise constructed once).
type Deps struct {
	Realizer       *realize.Realizer
	Fetcher        *fetch.Fetcher
	Uploader       *fetch.Uploader
	Metrics        *Metrics
	Log            *logging.Logger
	EngineHost     string
	EnginePortBase int
	ReadyTimeout   time.Duration
	PollInterval   time.Duration
	JobTimeout     time.Duration

	// Overwrite allows a job's realize phase to clobber a non-symlink already
	// present at a source/model projection path. Defaults to false.
	Overwrite bool
}

// Handler processes one job payload at a time per the pipeline of spec
// §4.8; a single worker handles one job at a time (spec §5).
type Handler struct {
	deps Deps
	mu   sync.Mutex // held for the whole of Handle, so jobs never overlap
}

// New creates a Handler.
func New(deps Deps) *Handler {
	if deps.ReadyTimeout == 0 {
		deps.ReadyTimeout = 60 * time.Second
	}
	if deps.PollInterval == 0 {
		deps.PollInterval = time.Second
	}
	return &Handler{deps: deps}
}

// Handle runs one job end to end, returning the Response to send back
// (base64 or object mode) and always running cleanup regardless of
// outcome (spec §4.8: "done and failed(*) both trigger cleanup").
func (h *Handler) Handle(ctx context.Context, lock *specmodel.ResolvedLock, workspaceDir string, payload *Payload) Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	state := StateReceived
	var staged []StagedInput

	defer func() {
		cleanupStagedInputs(staged)
		if h.deps.Metrics != nil {
			h.deps.Metrics.JobsTotal.WithLabelValues(string(state)).Inc()
			h.deps.Metrics.JobDuration.WithLabelValues(string(state)).Observe(time.Since(start).Seconds())
		}
	}()

	if h.deps.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.JobTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	log := h.deps.Log.Phase("jobhandler").WithField("request_id", requestID).WithField("version_id", lock.VersionID)

	state = StateRealizing
	realizeStart := time.Now()
	_, err := h.deps.Realizer.Realize(ctx, lock, realize.Options{WorkspaceDir: workspaceDir, Overwrite: h.deps.Overwrite})
	if h.deps.Metrics != nil {
		h.deps.Metrics.RealizeSeconds.Observe(time.Since(realizeStart).Seconds())
	}
	if err != nil {
		log.WithError(err).Error("realize failed")
		return h.fail(&state, err)
	}

	state = StateStaging
	workflow, err := h.loadWorkflow(ctx, payload)
	if err != nil {
		return h.fail(&state, err)
	}
	staged, err = stageInputs(ctx, h.deps.Fetcher, workspaceDir, requestID, payload.MergedImages())
	if err != nil {
		return h.fail(&state, err)
	}
	rewritten, err := RewriteGraph(workflow, stagedMap(staged))
	if err != nil {
		return h.fail(&state, errs.Wrap(errs.KindValidation, "rewriting graph", err))
	}

	state = StateExecuting
	outputFile, err := h.execute(ctx, workspaceDir, rewritten, requestID, payload)
	if err != nil {
		return h.fail(&state, err)
	}

	state = StateUploading
	resp, err := h.deliver(ctx, payload, requestID, outputFile)
	if err != nil {
		return h.fail(&state, err)
	}

	state = StateDone
	log.Info("job completed")
	return resp
}

func (h *Handler) fail(state *State, err error) Response {
	*state = State(fmt.Sprintf("failed(%s)", errs.JobFailureKind(errs.KindOf(err))))
	return ErrorResponse(err)
}

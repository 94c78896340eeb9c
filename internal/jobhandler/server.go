package jobhandler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// Server exposes the Job Handler over HTTP for long-lived deployments
// (SPEC_FULL.md §4: "C8 Job Handler gains a /healthz and /metrics surface
// when run via cmd/handler in server mode"), as an alternative to the
// one-shot stdin/file invocation.
type Server struct {
	handler       *Handler
	workspaceRoot string
	router        chi.Router
}

// NewServer builds the chi router backing the long-lived handler process.
// workspaceRoot is the parent directory under which a per-version workspace
// is created, named by the request's version_id and reused by every request
// for that version.
func NewServer(h *Handler, workspaceRoot string) *Server {
	s := &Server{handler: h, workspaceRoot: workspaceRoot}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", s.handleHealthz)
	if h.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Post("/invoke", s.handleInvoke)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler, letting Server back an *http.Server
// directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// invokeRequest wraps the job Payload with the resolved Lock it should run
// against, so callers need not separately run `versionctl realize` first.
type invokeRequest struct {
	Lock    *specmodel.ResolvedLock `json:"lock"`
	Payload json.RawMessage         `json:"payload"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: &ErrorBody{Kind: "usage", Message: err.Error()}})
		return
	}
	if req.Lock == nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: &ErrorBody{Kind: "usage", Message: "lock is required"}})
		return
	}

	payload, err := ParsePayload(req.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse(err))
		return
	}

	workspaceDir := filepath.Join(s.workspaceRoot, req.Lock.VersionID)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, Response{Error: &ErrorBody{Kind: "internal", Message: err.Error()}})
		return
	}

	resp := s.handler.Handle(r.Context(), req.Lock, workspaceDir, payload)
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// shutdownTimeout bounds how long the server waits for in-flight /invoke
// calls to finish when asked to stop (cmd/handler wires this to
// os/signal-triggered context cancellation, per the teacher's gateway
// shutdown pattern).
const shutdownTimeout = 30 * time.Second

// Shutdown gracefully stops srv, honoring shutdownTimeout.
func Shutdown(ctx context.Context, srv *http.Server) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

package jobhandler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// EngineProcess launches and supervises one Engine subprocess against a
// realized workspace, following the "launch, poll readiness, submit, wait,
// terminate on timeout" pattern (spec §9 design note).
type EngineProcess struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	host string
	port int
}

// LaunchEngine starts the Engine's interpreter against workspaceDir,
// binding to host:port and pointing it at the workspace's model-search-
// paths config. The Engine's process group, not just its PID, must be
// killed on cancellation (spec §9): Terminate calls Process.Kill, which
// is sufficient here because the venv python is exec'd directly (no
// intermediate shell), so there is no separate child to reap.
func LaunchEngine(ctx context.Context, workspaceDir, host string, port int) (*EngineProcess, error) {
	python := filepath.Join(workspaceDir, ".venv", "bin", "python")
	mainPy := filepath.Join(workspaceDir, "engine", "main.py")
	extraPaths := filepath.Join(workspaceDir, "extra_model_paths.yaml")

	cmd := exec.CommandContext(ctx, python, mainPy,
		"--listen", host,
		"--port", fmt.Sprintf("%d", port),
		"--extra-model-paths-config", extraPaths,
		"--output-directory", filepath.Join(workspaceDir, "output"),
		"--input-directory", filepath.Join(workspaceDir, "input"),
	)
	cmd.Dir = workspaceDir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := os.MkdirAll(filepath.Join(workspaceDir, "output"), 0o755); err != nil {
		return nil, errs.Wrap(errs.KindEngineStart, "creating output directory", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.KindEngineStart, "launching engine", err)
	}

	return &EngineProcess{cmd: cmd, host: host, port: port}, nil
}

// BaseURL is the Engine's local HTTP API address.
func (e *EngineProcess) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", e.host, e.port)
}

// Terminate forcibly kills the Engine subprocess (spec §5 cancellation:
// "forcibly terminates the Engine subprocess").
func (e *EngineProcess) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	if err := e.cmd.Process.Kill(); err != nil {
		return errs.Wrap(errs.KindEngineExec, "terminating engine process", err)
	}
	return nil
}

// Wait blocks until the Engine process exits, e.g. after a clean shutdown
// request from the caller.
func (e *EngineProcess) Wait() error {
	return e.cmd.Wait()
}

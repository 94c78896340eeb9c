package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
)

// handleRunUI implements `run-ui <version_id> [--host] [--port] [--
// extra engine args]` (spec §4.7): realize, then exec the Engine's
// interactive server in the foreground, replacing neither the CLI's stdio
// nor its process (unlike the Job Handler, this path is meant to be
// watched and Ctrl-C'd interactively).
func (e *environment) handleRunUI(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errs.New(errs.KindUsage, "run-ui requires a version_id")
	}
	versionID := args[0]

	fs := flag.NewFlagSet("run-ui", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	host := fs.String("host", "127.0.0.1", "Address for the Engine to listen on")
	port := fs.Int("port", 8188, "Port for the Engine to listen on")
	overwrite := fs.Bool("overwrite", false, "Allow clobbering a non-symlink already present at a source/model projection path")
	rest, extra := splitExtraArgs(args[1:])
	if err := fs.Parse(rest); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing run-ui flags", err)
	}

	lock, err := specmodel.LoadLock(e.cfg.LockPath(versionID))
	if err != nil {
		return err
	}

	workspaceDir := e.cfg.WorkspaceDir(versionID)
	realizer := e.realizer(e.cfg.Offline)
	if _, err := realizer.Realize(ctx, lock, realize.Options{WorkspaceDir: workspaceDir, Offline: e.cfg.Offline, Overwrite: *overwrite}); err != nil {
		return err
	}

	python := filepath.Join(workspaceDir, ".venv", "bin", "python")
	mainPy := filepath.Join(workspaceDir, "engine", "main.py")
	cmdArgs := append([]string{mainPy, "--listen", *host, "--port", strconv.Itoa(*port)}, extra...)

	cmd := exec.CommandContext(ctx, python, cmdArgs...)
	cmd.Dir = workspaceDir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errs.Wrap(errs.KindEngineExec, "running engine", err)
	}
	return nil
}

// splitExtraArgs separates a command's own flags from a trailing "--
// <engine args>" passthrough segment.
func splitExtraArgs(args []string) (own, extra []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// Package envbuild implements the Environment Builder (spec §4.5): creates
// the per-version Python interpreter environment and emits the
// model-search-paths auxiliary config consumed by the Engine at launch.
package envbuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"gopkg.in/yaml.v3"
)

// ModelCategories lists the model-search-paths document's sections
// (SPEC_FULL.md §3, "Model-search-paths file").
var ModelCategories = []string{
	"checkpoints", "loras", "vae", "controlnet",
	"upscale_models", "embeddings", "clip", "clip_vision",
	"diffusers", "configs",
}

// Builder orchestrates venv creation and pip installs for one workspace.
type Builder struct {
	pythonBin string
	pipBin    string
	log       *logging.Logger
}

// New creates a Builder. pythonBin defaults to "python3" when empty.
func New(pythonBin string, log *logging.Logger) *Builder {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &Builder{pythonBin: pythonBin, log: log}
}

// Options configures one Build invocation.
type Options struct {
	WorkspaceDir    string   // workspace root; venv goes in <WorkspaceDir>/.venv
	EngineSourceDir string   // materialized engine source tree
	ExtensionDirs   []string // materialized extension source trees, in spec order
	ExtraPackages   []string // spec.extra_packages, in spec order
	Offline         bool
	WheelsDir       string // pre-built wheels for offline-wheels mode
}

// Build creates <WorkspaceDir>/.venv if absent, then installs requirements
// in the order mandated by spec §4.5: core, then each extension, then
// extra_packages.
func (b *Builder) Build(ctx context.Context, opts Options) error {
	venvDir := filepath.Join(opts.WorkspaceDir, ".venv")
	if err := b.ensureVenv(ctx, venvDir); err != nil {
		return err
	}
	pip := b.pipPath(venvDir)

	reqFiles := []string{}
	if core := findRequirements(opts.EngineSourceDir); core != "" {
		reqFiles = append(reqFiles, core)
	}
	for _, ext := range opts.ExtensionDirs {
		if r := findRequirements(ext); r != "" {
			reqFiles = append(reqFiles, r)
		}
	}

	for _, req := range reqFiles {
		if err := b.installRequirements(ctx, pip, req, opts); err != nil {
			return err
		}
	}
	if len(opts.ExtraPackages) > 0 {
		if err := b.installPackages(ctx, pip, opts.ExtraPackages, opts); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) ensureVenv(ctx context.Context, venvDir string) error {
	if info, err := os.Stat(filepath.Join(venvDir, "pyvenv.cfg")); err == nil && !info.IsDir() {
		return nil
	}
	out, err := b.run(ctx, "", b.pythonBin, "-m", "venv", venvDir)
	if err != nil {
		return errs.Wrap(errs.KindEnvBuild, fmt.Sprintf("creating venv at %s: %s", venvDir, out), err)
	}
	return nil
}

func (b *Builder) installRequirements(ctx context.Context, pip, reqFile string, opts Options) error {
	args := []string{"install", "-r", reqFile}
	args = b.applyOfflineFlags(args, opts)
	out, err := b.run(ctx, "", pip, args...)
	if err != nil {
		return b.classifyPipError(reqFile, string(out), err, opts)
	}
	return nil
}

func (b *Builder) installPackages(ctx context.Context, pip string, packages []string, opts Options) error {
	args := append([]string{"install"}, packages...)
	args = b.applyOfflineFlags(args, opts)
	out, err := b.run(ctx, "", pip, args...)
	if err != nil {
		return b.classifyPipError(strings.Join(packages, ", "), string(out), err, opts)
	}
	return nil
}

func (b *Builder) applyOfflineFlags(args []string, opts Options) []string {
	if opts.Offline && opts.WheelsDir != "" {
		args = append(args, "--no-index", "--find-links", opts.WheelsDir)
	}
	return args
}

func (b *Builder) classifyPipError(what, output string, err error, opts Options) error {
	if opts.Offline && strings.Contains(strings.ToLower(output), "no matching distribution") {
		return errs.Wrap(errs.KindOfflineUnavailable, fmt.Sprintf("offline wheels missing for %s", what), err)
	}
	return errs.Wrap(errs.KindEnvBuild, fmt.Sprintf("pip install %s: %s", what, output), err)
}

func (b *Builder) pipPath(venvDir string) string {
	return filepath.Join(venvDir, "bin", "pip")
}

func (b *Builder) run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// findRequirements returns the path to a requirements.txt under sourceDir,
// or "" if none is declared.
func findRequirements(sourceDir string) string {
	if sourceDir == "" {
		return ""
	}
	candidate := filepath.Join(sourceDir, "requirements.txt")
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return ""
}

// ModelSearchPaths is the auxiliary config emitted for the Engine at launch
// (spec §4.5, SPEC_FULL.md §3): one absolute path list per model category.
type ModelSearchPaths map[string][]string

// WriteModelSearchPaths builds the document from the workspace's projected
// models directory and writes it as YAML to destPath.
func WriteModelSearchPaths(workspaceModelsDir, destPath string) error {
	doc := make(ModelSearchPaths, len(ModelCategories))
	for _, category := range ModelCategories {
		doc[category] = []string{filepath.Join(workspaceModelsDir, category)}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding model-search-paths", err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", filepath.Dir(destPath)), err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("writing %s", destPath), err)
	}
	return nil
}

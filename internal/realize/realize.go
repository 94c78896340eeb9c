// Package realize implements the Realizer (spec §4.6): orchestrates the
// Git Resolver, Content-Addressed Store, Fetcher and Environment Builder to
// turn a ResolvedLock into a ready Workspace on disk, with change-detection
// short-circuiting for warm-workspace cold starts.
package realize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/envbuild"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/gitresolver"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/store"
)

const markerName = ".env_marker"

// marker is the workspace marker file's content (spec §3, "Workspace").
type marker struct {
	VersionID  string `json:"version_id"`
	LockDigest string `json:"lock_digest"`
}

// Plan is the dry-run output of phase 1 (spec §4.6): the list of actions a
// full realize would take.
type Plan struct {
	WillCloneOrCheckout []string `json:"will_clone_or_checkout"`
	WillFetchModels     []string `json:"will_fetch_models"`
	WillInstallEnv      bool     `json:"will_install_env"`
	ShortCircuit        bool     `json:"short_circuit"`
}

// Warning is a non-fatal issue surfaced during realization (e.g. a model
// fetch that failed in offline mode, spec §4.6 error semantics).
type Warning struct {
	Phase   string
	Message string
}

// Result summarizes a completed (or dry-run) realization.
type Result struct {
	WorkspaceDir string
	Plan         Plan
	Warnings     []Warning
	ShortCircuit bool
}

// Realizer wires together the Resolver, Store, Fetcher and Builder.
type Realizer struct {
	git     *gitresolver.Resolver
	store   *store.Store
	fetcher *fetch.Fetcher
	builder *envbuild.Builder
	log     *logging.Logger
}

// New creates a Realizer.
func New(git *gitresolver.Resolver, s *store.Store, f *fetch.Fetcher, b *envbuild.Builder, log *logging.Logger) *Realizer {
	return &Realizer{git: git, store: s, fetcher: f, builder: b, log: log}
}

// Options configures one Realize call.
type Options struct {
	WorkspaceDir string
	DryRun       bool
	Offline      bool
	SkipModels   bool
	WheelsDir    string

	// Overwrite allows projecting a source or model over a non-symlink path
	// already present at the projection target. Defaults to false: the CAS's
	// "prevents silent data loss on manual workspace edits" invariant only
	// holds if callers opt into clobbering by hand.
	Overwrite bool
}

// Realize transforms lock into a ready Workspace at opts.WorkspaceDir,
// following the five deterministic phases of spec §4.6.
func (r *Realizer) Realize(ctx context.Context, lock *specmodel.ResolvedLock, opts Options) (*Result, error) {
	log := r.log.Phase("realize").WithField("version_id", lock.VersionID)

	plan := r.plan(lock)
	if ok, err := r.changeDetectionPasses(opts.WorkspaceDir, lock); err != nil {
		return nil, err
	} else if ok {
		plan.ShortCircuit = true
		log.Debug("short-circuiting: marker matches and projections are healthy")
		return &Result{WorkspaceDir: opts.WorkspaceDir, Plan: plan, ShortCircuit: true}, nil
	}

	if opts.DryRun {
		return &Result{WorkspaceDir: opts.WorkspaceDir, Plan: plan}, nil
	}

	if err := os.MkdirAll(opts.WorkspaceDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindRealization, fmt.Sprintf("creating workspace %s", opts.WorkspaceDir), err)
	}

	if err := r.realizeSources(ctx, lock, opts); err != nil {
		return nil, err
	}

	warnings, err := r.realizeModels(ctx, lock, opts)
	if err != nil {
		return nil, err
	}

	if err := r.realizeEnvironment(ctx, lock, opts); err != nil {
		return nil, err
	}

	// A partial realization (e.g. a model unavailable offline) must not be
	// mistaken for a complete one on the next cold start: leave the marker
	// unwritten so the next realize, online or off, retries the gap.
	if len(warnings) == 0 {
		if err := writeMarker(opts.WorkspaceDir, lock); err != nil {
			return nil, err
		}
	}

	return &Result{WorkspaceDir: opts.WorkspaceDir, Plan: plan, Warnings: warnings}, nil
}

func (r *Realizer) plan(lock *specmodel.ResolvedLock) Plan {
	p := Plan{WillInstallEnv: true}
	p.WillCloneOrCheckout = append(p.WillCloneOrCheckout,
		fmt.Sprintf("%s@%s", lock.EngineSource.Repo, lock.EngineSource.Commit))
	for _, ext := range lock.Extensions {
		p.WillCloneOrCheckout = append(p.WillCloneOrCheckout, fmt.Sprintf("%s@%s", ext.Repo, ext.Commit))
	}
	if !lock.Options.SkipModels {
		for _, m := range lock.Models {
			p.WillFetchModels = append(p.WillFetchModels, m.Source)
		}
	}
	return p
}

// changeDetectionPasses implements spec §4.6 "Change detection" plus
// SPEC_FULL.md §4's supplement: the marker must match the Lock digest AND
// every projection must still resolve on disk.
func (r *Realizer) changeDetectionPasses(workspaceDir string, lock *specmodel.ResolvedLock) (bool, error) {
	m, err := readMarker(workspaceDir)
	if err != nil {
		return false, nil // no marker (or unreadable) => not short-circuitable, not an error
	}
	if m.VersionID != lock.VersionID || m.LockDigest != lock.SpecDigest {
		return false, nil
	}
	if !store.ProjectionIsHealthy(filepath.Join(workspaceDir, "engine")) {
		return false, nil
	}
	for _, ext := range lock.Extensions {
		name := ext.Name
		if name == "" {
			name = gitresolver.Slug(ext.Repo)
		}
		if !store.ProjectionIsHealthy(filepath.Join(workspaceDir, "custom_nodes", name)) {
			return false, nil
		}
	}
	for _, m := range lock.Models {
		if !store.ProjectionIsHealthy(filepath.Join(workspaceDir, "models", resolveModelTarget(m))) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Realizer) realizeSources(ctx context.Context, lock *specmodel.ResolvedLock, opts Options) error {
	enginePath, err := r.git.Materialize(ctx, lock.EngineSource.Repo, lock.EngineSource.Commit)
	if err != nil {
		return errs.Wrap(errs.KindRealization, "materializing engine source", err)
	}
	if err := store.ProjectSource(enginePath, filepath.Join(opts.WorkspaceDir, "engine"), opts.Overwrite); err != nil {
		return errs.Wrap(errs.KindRealization, "projecting engine source", err)
	}

	for _, ext := range lock.Extensions {
		extPath, err := r.git.Materialize(ctx, ext.Repo, ext.Commit)
		if err != nil {
			return errs.Wrap(errs.KindRealization, fmt.Sprintf("materializing extension %s", ext.Repo), err)
		}
		name := ext.Name
		if name == "" {
			name = gitresolver.Slug(ext.Repo)
		}
		target := filepath.Join(opts.WorkspaceDir, "custom_nodes", name)
		if err := store.ProjectSource(extPath, target, opts.Overwrite); err != nil {
			return errs.Wrap(errs.KindRealization, fmt.Sprintf("projecting extension %s", name), err)
		}
	}
	return nil
}

func (r *Realizer) realizeModels(ctx context.Context, lock *specmodel.ResolvedLock, opts Options) ([]Warning, error) {
	var warnings []Warning
	if lock.Options.SkipModels || opts.SkipModels {
		warnings = append(warnings, Warning{Phase: "models", Message: "skip_models set, no models fetched"})
		return warnings, nil
	}

	for _, m := range lock.Models {
		blobPath, err := r.fetcher.Fetch(ctx, m.Source, m.Checksum)
		if err != nil {
			if opts.Offline {
				warnings = append(warnings, Warning{Phase: "models",
					Message: fmt.Sprintf("model %s unavailable offline: %v", m.Source, err)})
				continue
			}
			return warnings, errs.Wrap(errs.KindRealization, fmt.Sprintf("fetching model %s", m.Source), err)
		}

		target := filepath.Join(opts.WorkspaceDir, "models", resolveModelTarget(m))
		if err := store.ProjectModel(blobPath, target, opts.Overwrite); err != nil {
			return warnings, errs.Wrap(errs.KindRealization, fmt.Sprintf("projecting model %s", m.Source), err)
		}
	}
	return warnings, nil
}

// resolveModelTarget composes a model's target path per spec §4.4 step 3:
// if target_path is absent, compose <target_subdir>/<name>.
func resolveModelTarget(m specmodel.ModelRef) string {
	if m.TargetPath != "" {
		return m.TargetPath
	}
	name := m.Name
	if name == "" {
		name = filepath.Base(m.Source)
	}
	return filepath.Join(m.TargetSubdir, name)
}

func (r *Realizer) realizeEnvironment(ctx context.Context, lock *specmodel.ResolvedLock, opts Options) error {
	extDirs := make([]string, 0, len(lock.Extensions))
	for _, ext := range lock.Extensions {
		name := ext.Name
		if name == "" {
			name = gitresolver.Slug(ext.Repo)
		}
		extDirs = append(extDirs, filepath.Join(opts.WorkspaceDir, "custom_nodes", name))
	}

	err := r.builder.Build(ctx, envbuild.Options{
		WorkspaceDir:    opts.WorkspaceDir,
		EngineSourceDir: filepath.Join(opts.WorkspaceDir, "engine"),
		ExtensionDirs:   extDirs,
		ExtraPackages:   lock.ExtraPackages,
		Offline:         opts.Offline,
		WheelsDir:       opts.WheelsDir,
	})
	if err != nil {
		return err
	}

	return envbuild.WriteModelSearchPaths(
		filepath.Join(opts.WorkspaceDir, "models"),
		filepath.Join(opts.WorkspaceDir, "extra_model_paths.yaml"),
	)
}

// HasMarker reports whether workspaceDir carries a completed-realization
// marker. Callers (e.g. the CLI's delete command) use this as the spec's
// safety check before removing a workspace: a directory without a marker
// might be something other than a realized workspace.
func HasMarker(workspaceDir string) bool {
	_, err := os.Stat(filepath.Join(workspaceDir, markerName))
	return err == nil
}

func readMarker(workspaceDir string) (*marker, error) {
	data, err := os.ReadFile(filepath.Join(workspaceDir, markerName))
	if err != nil {
		return nil, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeMarker(workspaceDir string, lock *specmodel.ResolvedLock) error {
	data, err := json.Marshal(marker{VersionID: lock.VersionID, LockDigest: lock.SpecDigest})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding marker", err)
	}
	path := filepath.Join(workspaceDir, markerName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInternal, "writing marker", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.Wrap(errs.KindInternal, "publishing marker", err)
	}
	return nil
}

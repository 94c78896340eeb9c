package main

import (
	"context"
	"time"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/config"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/envbuild"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/gitresolver"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/store"
)

// environment bundles the loaded Config and Logger every subcommand needs,
// and builds the component graph (C1/C2/C3/C5/C6) on demand.
type environment struct {
	cfg *config.Config
	log *logging.Logger
}

func (e *environment) realizer(offline bool) *realize.Realizer {
	s := store.New(e.cfg.CacheRoot)
	git := gitresolver.New(s.SourcesDir(), offline, e.log)
	f := fetch.New(s, fetch.Tokens{Hub: e.cfg.Fetcher.HubToken, Market: e.cfg.Fetcher.MarketToken}, e.log)
	builder := envbuild.New("python3", e.log)
	return realize.New(git, s, f, builder, e.log)
}

// fetcher builds a standalone Fetcher, for callers (e.g. run-handler) that
// need one outside of a Realizer.
func (e *environment) fetcher() *fetch.Fetcher {
	s := store.New(e.cfg.CacheRoot)
	return fetch.New(s, fetch.Tokens{Hub: e.cfg.Fetcher.HubToken, Market: e.cfg.Fetcher.MarketToken}, e.log)
}

// uploader builds the Uploader used to deliver job outputs in "object"
// output mode.
func (e *environment) uploader() *fetch.Uploader {
	signedTTL, _ := time.ParseDuration(e.cfg.Uploader.SignedURLTTL)
	return fetch.NewUploader(fetch.UploaderConfig{
		Endpoint:     e.cfg.Uploader.Endpoint,
		Bucket:       e.cfg.Uploader.Bucket,
		Prefix:       e.cfg.Uploader.Prefix,
		Public:       e.cfg.Uploader.Public,
		SignedURLTTL: signedTTL,
		Retries:      e.cfg.Uploader.Retries,
	}, e.log)
}

// resolveSpec turns spec into a ResolvedLock: every SourceRef's ref is
// looked up via the Git Resolver unless a commit is already pinned (spec
// §4.4 step 2). Offline, every SourceRef must already carry a pinned commit;
// a floating ref fails with offline_unavailable even if the source cache
// holds a clone of the repo (C2's documented offline semantics).
func (e *environment) resolveSpec(ctx context.Context, spec *specmodel.VersionSpec, offline bool) (*specmodel.ResolvedLock, error) {
	s := store.New(e.cfg.CacheRoot)
	git := gitresolver.New(s.SourcesDir(), offline, e.log)

	resolved := *spec
	var err error
	resolved.EngineSource, err = resolveSourceRef(ctx, git, spec.EngineSource, offline)
	if err != nil {
		return nil, err
	}

	resolved.Extensions = make([]specmodel.SourceRef, len(spec.Extensions))
	for i, ext := range spec.Extensions {
		resolved.Extensions[i], err = resolveSourceRef(ctx, git, ext, offline)
		if err != nil {
			return nil, err
		}
	}

	return specmodel.NewResolvedLock(resolved, time.Now().Unix())
}

func resolveSourceRef(ctx context.Context, git *gitresolver.Resolver, ref specmodel.SourceRef, offline bool) (specmodel.SourceRef, error) {
	if ref.Commit != "" {
		return ref, nil
	}
	if offline {
		return specmodel.SourceRef{}, errs.New(errs.KindOfflineUnavailable,
			"resolving a floating ref while offline requires an already-pinned commit")
	}
	commit, err := git.Resolve(ctx, ref.Repo, ref.Ref)
	if err != nil {
		return specmodel.SourceRef{}, err
	}
	ref.Commit = commit
	return ref, nil
}

// Command handler is the Job Handler entry point (spec §4.8, C8): a
// serverless-style worker that accepts one job payload, ensures the named
// version is realized, stages inputs, drives the Engine and delivers
// results. It runs in two modes: a one-shot invocation reading a single
// request from stdin or --input, and a long-lived server mode (--serve)
// exposing /healthz, /metrics and /invoke over HTTP (mirroring the
// teacher's gateway boot sequence: build the router, listen in a
// goroutine, wait on SIGINT/SIGTERM, shut down with a bounded timeout).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/buildinfo"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/config"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/envbuild"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/gitresolver"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/jobhandler"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/realize"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/specmodel"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/store"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, errs.Line(err))
		os.Exit(errs.ExitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("handler", flag.ContinueOnError)
	serve := fs.Bool("serve", false, "Run as a long-lived HTTP server instead of a one-shot invocation")
	port := fs.Int("port", 8090, "Port to listen on in --serve mode")
	input := fs.String("input", "", "Path to a one-shot request JSON ({lock, payload}); defaults to stdin")
	overwrite := fs.Bool("overwrite", false, "Allow clobbering a non-symlink already present at a source/model projection path")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing handler flags", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.KindUsage, "loading configuration", err)
	}
	log := logging.New(cfg.Logging)
	log.WithField("version", buildinfo.Full()).Info("job handler starting")

	reg := prometheus.NewRegistry()
	deps := jobhandler.Deps{
		Realizer:  buildRealizer(cfg, log, cfg.Offline),
		Fetcher:   buildFetcher(cfg, log),
		Uploader:  buildUploader(cfg, log),
		Metrics:   jobhandler.NewMetrics(reg),
		Log:       log,
		Overwrite: *overwrite,
	}
	h := jobhandler.New(deps)

	if *serve {
		return runServer(ctx, h, cfg, log, reg, *port)
	}
	return runOneShot(ctx, h, cfg, *input)
}

func buildRealizer(cfg *config.Config, log *logging.Logger, offline bool) *realize.Realizer {
	s := store.New(cfg.CacheRoot)
	git := gitresolver.New(s.SourcesDir(), offline, log)
	f := fetch.New(s, fetch.Tokens{Hub: cfg.Fetcher.HubToken, Market: cfg.Fetcher.MarketToken}, log)
	builder := envbuild.New("python3", log)
	return realize.New(git, s, f, builder, log)
}

func buildFetcher(cfg *config.Config, log *logging.Logger) *fetch.Fetcher {
	s := store.New(cfg.CacheRoot)
	return fetch.New(s, fetch.Tokens{Hub: cfg.Fetcher.HubToken, Market: cfg.Fetcher.MarketToken}, log)
}

func buildUploader(cfg *config.Config, log *logging.Logger) *fetch.Uploader {
	signedTTL, _ := time.ParseDuration(cfg.Uploader.SignedURLTTL)
	return fetch.NewUploader(fetch.UploaderConfig{
		Endpoint:     cfg.Uploader.Endpoint,
		Bucket:       cfg.Uploader.Bucket,
		Prefix:       cfg.Uploader.Prefix,
		Public:       cfg.Uploader.Public,
		SignedURLTTL: signedTTL,
		Retries:      cfg.Uploader.Retries,
	}, log)
}

// oneShotRequest is the one-shot invocation's input shape: a resolved Lock
// plus a raw job payload, the same pairing /invoke accepts over HTTP.
type oneShotRequest struct {
	Lock    *specmodel.ResolvedLock `json:"lock"`
	Payload json.RawMessage         `json:"payload"`
}

func runOneShot(ctx context.Context, h *jobhandler.Handler, cfg *config.Config, inputPath string) error {
	var data []byte
	var err error
	if inputPath != "" {
		data, err = os.ReadFile(inputPath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return errs.Wrap(errs.KindUsage, "reading one-shot request", err)
	}

	var req oneShotRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errs.Wrap(errs.KindUsage, "parsing one-shot request", err)
	}
	if req.Lock == nil {
		return errs.New(errs.KindUsage, "request is missing \"lock\"")
	}
	payload, err := jobhandler.ParsePayload(req.Payload)
	if err != nil {
		return err
	}

	workspaceDir := cfg.WorkspaceDir(req.Lock.VersionID)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, "creating workspace", err)
	}

	resp := h.Handle(ctx, req.Lock, workspaceDir, payload)
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding response", err)
	}
	os.Stdout.Write(out)
	os.Stdout.Write([]byte("\n"))
	if resp.Error != nil {
		return errs.New(errs.Kind(resp.Error.Kind), resp.Error.Message)
	}
	return nil
}

func runServer(ctx context.Context, h *jobhandler.Handler, cfg *config.Config, log *logging.Logger, reg *prometheus.Registry, port int) error {
	srv := jobhandler.NewServer(h, cfg.EngineHome)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", httpSrv.Addr).Info("handler listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return errs.Wrap(errs.KindInternal, "serving handler", err)
	case <-sigCh:
		log.Info("shutting down")
	}

	return jobhandler.Shutdown(ctx, httpSrv)
}

// Package fetch implements the Fetcher (spec §4.1): deliver a local,
// checksum-verified, atomically-published file for a source URI across the
// supported schemes, and its inverse the Uploader (SPEC_FULL.md §4, used by
// the Job Handler's delivery step).
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/resilience"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/store"
)

// defaultDownloadRate bounds how many new downloads the Fetcher starts per
// second, independent of how many goroutines call Fetch concurrently
// (spec §4.1 "Concurrency" speaks to collapsing duplicate keys; this adds
// a ceiling on distinct-key download starts so a large model list doesn't
// saturate the egress link or the upstream host).
const defaultDownloadRate = 8

// Tokens carries the environment-sourced credentials for gated schemes
// (spec §4.1: "an optional token environment variable enables private
// access" for hub://, and an API token for market://).
type Tokens struct {
	Hub    string
	Market string
}

// Fetcher downloads source URIs into the Store's model-blob namespace,
// verifying checksums and collapsing concurrent callers of the same cache
// key onto a single download (spec §4.1 "Concurrency").
type Fetcher struct {
	store   *store.Store
	client  *http.Client
	retry   resilience.RetryConfig
	tokens  Tokens
	log     *logging.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// New creates a Fetcher publishing into s.
func New(s *store.Store, tokens Tokens, log *logging.Logger) *Fetcher {
	return &Fetcher{
		store:    s,
		client:   &http.Client{},
		retry:    resilience.DefaultRetryConfig(),
		tokens:   tokens,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(defaultDownloadRate), defaultDownloadRate),
		inFlight: make(map[string]*sync.Mutex),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// breakerFor returns the per-host CircuitBreaker guarding uri's remote,
// creating one on first use (spec §4.1's retry/backoff policy is
// per-attempt; this adds a per-remote failure memory on top, so a source
// that is down stops absorbing the full retry budget on every subsequent
// fetch until its Timeout elapses).
func (f *Fetcher) breakerFor(uri string) *resilience.CircuitBreaker {
	host := hostOf(uri)
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[host]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		f.breakers[host] = cb
	}
	return cb
}

func hostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	return u.Scheme + "://" + u.Host
}

// WithDownloadRate overrides the Fetcher's download-start throttle (default
// defaultDownloadRate per second, burst equal to the rate).
func (f *Fetcher) WithDownloadRate(perSecond int) *Fetcher {
	f.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	return f
}

// Fetch resolves uri (optionally verified against checksum, "<algo>:<hex>")
// to a local path inside the Store, downloading it if not already cached.
func (f *Fetcher) Fetch(ctx context.Context, uri, checksum string) (string, error) {
	key, err := cacheKeyFor(uri, checksum)
	if err != nil {
		return "", err
	}
	if f.store.HasBlob(key) {
		return f.store.BlobPath(key), nil
	}

	lock := f.entryLock(key.Algo + ":" + key.Hex)
	lock.Lock()
	defer lock.Unlock()

	if f.store.HasBlob(key) {
		return f.store.BlobPath(key), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", errs.Wrap(errs.KindNetwork, "waiting for download rate limiter", err)
	}

	log := f.log.Phase("fetch").WithField("uri", uri)
	dest := f.store.BlobPath(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", filepath.Dir(dest)), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "blob.tmp.*")
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "creating temp download file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var sum hash.Hash
	if checksum != "" {
		sum, err = newHash(key.Algo)
		if err != nil {
			tmp.Close()
			return "", err
		}
	}

	breaker := f.breakerFor(uri)
	downloadErr := breaker.Execute(ctx, func() error {
		return resilience.RetryIf(ctx, f.retry, func() error {
			if _, err := tmp.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if err := tmp.Truncate(0); err != nil {
				return err
			}
			if sum != nil {
				sum.Reset()
			}
			return f.download(ctx, uri, tmp, sum)
		}, isTransient)
	})
	if downloadErr != nil {
		tmp.Close()
		if errors.Is(downloadErr, resilience.ErrCircuitOpen) || errors.Is(downloadErr, resilience.ErrTooManyRequests) {
			return "", errs.Wrap(errs.KindNetwork, fmt.Sprintf("remote for %s is circuit-broken after repeated failures", uri), downloadErr)
		}
		return "", classifyDownloadErr(uri, downloadErr)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errs.Wrap(errs.KindInternal, "syncing downloaded file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errs.Wrap(errs.KindInternal, "closing downloaded file", err)
	}

	if checksum != "" && sum != nil {
		got := fmt.Sprintf("%x", sum.Sum(nil))
		if got != key.Hex {
			return "", errs.New(errs.KindIntegrity,
				fmt.Sprintf("checksum mismatch for %s: want %s:%s got %s", uri, key.Algo, key.Hex, got))
		}
	}

	published, err := f.store.PublishBlob(key, tmpName)
	if err != nil {
		return "", err
	}
	log.Debug("published blob")
	return published, nil
}

func (f *Fetcher) entryLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.inFlight[key]
	if !ok {
		l = &sync.Mutex{}
		f.inFlight[key] = l
	}
	return l
}

func cacheKeyFor(uri, checksum string) (store.BlobKey, error) {
	if checksum != "" {
		return store.KeyFromChecksum(checksum)
	}
	return store.KeyFromURI(uri), nil
}

// newHash builds the verifier for one of the checksum algorithms spec §4.1
// step 4 requires Fetch to honor unconditionally, never silently skipping
// verification for a declared-but-uncommon algo.
func newHash(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "md5":
		return md5.New(), nil
	default:
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("unsupported checksum algorithm %q", algo))
	}
}

// download dispatches on URI scheme (spec §4.1 "Supported schemes") and
// streams the body into dst, mirroring into sum when non-nil.
func (f *Fetcher) download(ctx context.Context, uri string, dst io.Writer, sum hash.Hash) error {
	w := dst
	if sum != nil {
		w = io.MultiWriter(dst, sum)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return errs.New(errs.KindValidation, fmt.Sprintf("invalid source URI %q", uri))
	}

	switch u.Scheme {
	case "http", "https":
		return f.downloadHTTP(ctx, uri, w, nil)
	case "file", "":
		return copyLocalFile(strings.TrimPrefix(uri, "file://"), w)
	case "gs":
		return f.downloadHTTP(ctx, gsToHTTP(u), w, nil)
	case "hub":
		return f.downloadHTTP(ctx, hubToHTTP(u), w, map[string]string{"Authorization": "Bearer " + f.tokens.Hub})
	case "market":
		return f.downloadHTTP(ctx, marketToHTTP(u), w, map[string]string{"Authorization": "Bearer " + f.tokens.Market})
	default:
		return errs.New(errs.KindValidation, fmt.Sprintf("unsupported source scheme %q", u.Scheme))
	}
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL string, w io.Writer, extraHeaders map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "building request", err)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return networkErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		_, err := io.Copy(w, resp.Body)
		if err != nil {
			return networkErr(err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errs.New(errs.KindNetwork, fmt.Sprintf("%s: 404 not found", rawURL))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New(errs.KindAuth, fmt.Sprintf("%s: %d", rawURL, resp.StatusCode))
	case resp.StatusCode >= 500:
		return &transientErr{err: fmt.Errorf("%s: server error %d", rawURL, resp.StatusCode)}
	default:
		return errs.New(errs.KindNetwork, fmt.Sprintf("%s: unexpected status %d", rawURL, resp.StatusCode))
	}
}

func copyLocalFile(path string, w io.Writer) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.KindNetwork, fmt.Sprintf("source file %s not found", path))
		}
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("opening %s", path), err)
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("copying %s", path), err)
	}
	return nil
}

// gsToHTTP, hubToHTTP, marketToHTTP translate the scheme-specific URI forms
// of spec §4.1 into the concrete HTTP endpoint the real backend exposes.
// Kept as simple rewrites rather than vendor SDK clients, per §4.1's "MAY
// shell out to a vendor CLI or use a native client; behavior identical".
func gsToHTTP(u *url.URL) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s%s", u.Host, u.Path)
}

func hubToHTTP(u *url.URL) string {
	// hub://<org>/<repo>[@<rev>]/<path>
	org := u.Host
	rest := strings.TrimPrefix(u.Path, "/")
	parts := strings.SplitN(rest, "/", 2)
	repoRev := parts[0]
	filePath := ""
	if len(parts) == 2 {
		filePath = "/" + parts[1]
	}

	repo := repoRev
	rev := "main"
	if idx := strings.Index(repoRev, "@"); idx >= 0 {
		rev = repoRev[idx+1:]
		repo = repoRev[:idx]
	}
	return fmt.Sprintf("https://huggingface.co/%s/%s/resolve/%s%s", org, repo, rev, filePath)
}

func marketToHTTP(u *url.URL) string {
	// market://models/<id> or market://api/download/models/<id>
	return "https://api.market.internal/" + strings.TrimPrefix(u.Host+u.Path, "/")
}

type transientErr struct{ err error }

func (e *transientErr) Error() string { return e.err.Error() }
func (e *transientErr) Unwrap() error { return e.err }

func networkErr(err error) error {
	return &transientErr{err: fmt.Errorf("transient network error: %w", err)}
}

func isTransient(err error) bool {
	var t *transientErr
	if as(err, &t) {
		return true
	}
	return false
}

func as(err error, target **transientErr) bool {
	for err != nil {
		if t, ok := err.(*transientErr); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func classifyDownloadErr(uri string, err error) error {
	if ee, ok := errs.As(err); ok {
		return ee
	}
	var t *transientErr
	if as(err, &t) {
		return errs.Wrap(errs.KindNetwork, fmt.Sprintf("fetching %s", uri), t.err)
	}
	return errs.Wrap(errs.KindNetwork, fmt.Sprintf("fetching %s", uri), err)
}

// WithRetryConfig overrides the Fetcher's retry policy, replacing the
// default of 3 attempts from resilience.DefaultRetryConfig.
func (f *Fetcher) WithRetryConfig(cfg resilience.RetryConfig) *Fetcher {
	f.retry = cfg
	return f
}

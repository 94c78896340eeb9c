package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/resilience"
)

// UploadResult is one delivered output artifact, shaped to match the two
// delivery modes of the Job Response (SPEC_FULL.md §4 / spec §6):
// inline base64 or an object reference with an optional signed URL.
type UploadResult struct {
	Name      string `json:"name"`
	Mode      string `json:"mode"` // "base64" | "object"
	Data      string `json:"data,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key,omitempty"`
	SignedURL string `json:"signed_url,omitempty"`
	SHA256    string `json:"sha256"`
	Bytes     int64  `json:"bytes"`
}

// UploaderConfig configures the inverse of the Fetcher: where generated
// outputs go when OutputMode is "object" rather than "base64".
type UploaderConfig struct {
	Endpoint     string // PUT target prefix, e.g. an object-store HTTP endpoint
	Bucket       string
	Prefix       string
	Public       bool
	SignedURLTTL time.Duration
	Retries      int
}

// Uploader is the Fetcher's inverse (SPEC_FULL.md §4: "C1 Fetcher gains an
// Uploader counterpart ... used by C8 step 5"): it delivers a local output
// file either inline (base64) or by uploading it and returning a reference.
type Uploader struct {
	cfg    UploaderConfig
	client *http.Client
	retry  resilience.RetryConfig
	log    *logging.Logger
}

// NewUploader creates an Uploader from cfg.
func NewUploader(cfg UploaderConfig, log *logging.Logger) *Uploader {
	retry := resilience.DefaultRetryConfig()
	if cfg.Retries > 0 {
		retry.MaxAttempts = cfg.Retries
	}
	return &Uploader{cfg: cfg, client: &http.Client{}, retry: retry, log: log}
}

// DeliverBase64 reads localPath and returns it inline, base64-encoded.
func DeliverBase64(name, localPath string) (*UploadResult, error) {
	data, sum, size, err := readAndHash(localPath)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Name:   name,
		Mode:   "base64",
		Data:   base64.StdEncoding.EncodeToString(data),
		SHA256: sum,
		Bytes:  size,
	}, nil
}

// DeliverObject uploads localPath to the configured object endpoint under
// <cfg.Prefix>/<name> and returns a reference, retrying transient failures
// with the same backoff policy as the Fetcher (SPEC_FULL.md §4).
func (u *Uploader) DeliverObject(ctx context.Context, name, localPath string) (*UploadResult, error) {
	return u.deliver(ctx, name, u.cfg.Prefix+"/"+name, localPath)
}

// DeliverObjectAtKey uploads localPath under the caller-supplied full
// object key, bypassing cfg.Prefix — used by callers (the Job Handler)
// that must honor a per-request object_prefix instead of the Uploader's
// configured default (spec §4.8 step 5's "<prefix>/<request_id>_..." key,
// where prefix is the payload's, not the Uploader's).
func (u *Uploader) DeliverObjectAtKey(ctx context.Context, key, localPath string) (*UploadResult, error) {
	return u.deliver(ctx, filepath.Base(key), key, localPath)
}

func (u *Uploader) deliver(ctx context.Context, name, key, localPath string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpload, fmt.Sprintf("opening %s", localPath), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.KindUpload, fmt.Sprintf("stat %s", localPath), err)
	}

	sum := sha256.New()
	uploadErr := resilience.RetryIf(ctx, u.retry, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		sum.Reset()
		return u.put(ctx, key, io.TeeReader(f, sum), info.Size())
	}, isTransient)
	if uploadErr != nil {
		return nil, errs.Wrap(errs.KindUpload, fmt.Sprintf("uploading %s", name), uploadErr)
	}

	result := &UploadResult{
		Name:   name,
		Mode:   "object",
		Bucket: u.cfg.Bucket,
		Key:    key,
		SHA256: hex.EncodeToString(sum.Sum(nil)),
		Bytes:  info.Size(),
	}
	if u.cfg.Public || u.cfg.SignedURLTTL > 0 {
		result.SignedURL = u.signedURL(key)
	}
	return result, nil
}

func (u *Uploader) put(ctx context.Context, key string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.cfg.Endpoint+"/"+u.cfg.Bucket+"/"+key, body)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "building upload request", err)
	}
	req.ContentLength = size

	resp, err := u.client.Do(req)
	if err != nil {
		return networkErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return &transientErr{err: fmt.Errorf("upload %s: server error %d", key, resp.StatusCode)}
	default:
		return fmt.Errorf("upload %s: status %d", key, resp.StatusCode)
	}
}

func (u *Uploader) signedURL(key string) string {
	return fmt.Sprintf("%s/%s/%s?ttl=%d", u.cfg.Endpoint, u.cfg.Bucket, key, int(u.cfg.SignedURLTTL.Seconds()))
}

func readAndHash(path string) ([]byte, string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", 0, errs.Wrap(errs.KindUpload, fmt.Sprintf("reading %s", path), err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), int64(len(data)), nil
}

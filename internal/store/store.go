// Package store implements the Content-Addressed Store (spec §4.3): two
// immutable, atomically-published namespaces (source trees and model
// blobs) and the symlink projections that make them visible inside a
// version workspace.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// Store roots the sources and models namespaces under cacheRoot
// ($CACHE_ROOT/sources, $CACHE_ROOT/models).
type Store struct {
	sourcesDir string
	modelsDir  string
}

// New creates a Store rooted at cacheRoot.
func New(cacheRoot string) *Store {
	return &Store{
		sourcesDir: filepath.Join(cacheRoot, "sources"),
		modelsDir:  filepath.Join(cacheRoot, "models"),
	}
}

// SourcesDir returns the root of the source-cache namespace.
func (s *Store) SourcesDir() string { return s.sourcesDir }

// ModelsDir returns the root of the model-blob namespace.
func (s *Store) ModelsDir() string { return s.modelsDir }

// BlobKey identifies a ModelBlob's content address: either a parsed
// "<algo>:<hex>" checksum, or the degenerate SHA-256-of-URI fallback used
// when a Spec's model entry carries no checksum (spec §3, ModelBlob).
type BlobKey struct {
	Algo string
	Hex  string
}

// KeyFromChecksum parses a "<algo>:<hex>" checksum string.
func KeyFromChecksum(checksum string) (BlobKey, error) {
	parts := strings.SplitN(checksum, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return BlobKey{}, errs.New(errs.KindValidation, fmt.Sprintf("malformed checksum %q, want <algo>:<hex>", checksum))
	}
	return BlobKey{Algo: parts[0], Hex: strings.ToLower(parts[1])}, nil
}

// KeyFromURI derives the degenerate cache key for a source with no
// checksum: SHA-256 of the source URI. Still useful across identical
// specs, per spec §3.
func KeyFromURI(uri string) BlobKey {
	sum := sha256.Sum256([]byte(uri))
	return BlobKey{Algo: "sha256", Hex: hex.EncodeToString(sum[:])}
}

// BlobPath returns the ModelBlob location for key:
// $CACHE_ROOT/models/<algo>/<hh>/<hex>/blob.
func (s *Store) BlobPath(key BlobKey) string {
	hh := key.Hex
	if len(hh) >= 2 {
		hh = key.Hex[:2]
	}
	return filepath.Join(s.modelsDir, key.Algo, hh, key.Hex, "blob")
}

// HasBlob reports whether a ModelBlob is already published for key.
func (s *Store) HasBlob(key BlobKey) bool {
	info, err := os.Stat(s.BlobPath(key))
	return err == nil && !info.IsDir()
}

// PublishBlob atomically moves tmpPath (a fully-written, already-verified
// temp file) into its content-addressed final location. A blob is
// immutable once published; publishing the same key twice is a no-op
// (the newer temp file is discarded).
func (s *Store) PublishBlob(key BlobKey, tmpPath string) (string, error) {
	dest := s.BlobPath(key)
	if s.HasBlob(key) {
		os.Remove(tmpPath)
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", filepath.Dir(dest)), err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", errs.Wrap(errs.KindInternal, fmt.Sprintf("publishing blob %s", dest), err)
	}
	return dest, nil
}

// ProjectSource creates or refreshes a symlink at workspacePath pointing
// at cacheEntryPath (spec §4.3 project_source). An existing non-symlink at
// workspacePath is refused unless overwrite is set.
func ProjectSource(cacheEntryPath, workspacePath string, overwrite bool) error {
	return project(cacheEntryPath, workspacePath, overwrite)
}

// ProjectModel creates parent directories then symlinks blobPath at
// workspacePath (spec §4.3 project_model). Symlinks, not hardlinks, are
// used to preserve cross-device compatibility (workspace and cache may
// live on different filesystems/volumes).
func ProjectModel(blobPath, workspacePath string, overwrite bool) error {
	return project(blobPath, workspacePath, overwrite)
}

func project(target, linkPath string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", filepath.Dir(linkPath)), err)
	}

	info, err := os.Lstat(linkPath)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		existing, rerr := os.Readlink(linkPath)
		if rerr == nil && existing == target {
			return nil
		}
		if err := os.Remove(linkPath); err != nil {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("replacing stale symlink %s", linkPath), err)
		}
	case err == nil:
		if !overwrite {
			return errs.New(errs.KindValidation,
				fmt.Sprintf("refusing to overwrite non-symlink %s (pass --overwrite)", linkPath))
		}
		if removeErr := os.RemoveAll(linkPath); removeErr != nil {
			return errs.Wrap(errs.KindInternal, fmt.Sprintf("removing %s", linkPath), removeErr)
		}
	case !os.IsNotExist(err):
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("stat %s", linkPath), err)
	}

	if err := os.Symlink(target, linkPath); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("symlinking %s -> %s", linkPath, target), err)
	}
	return nil
}

// ProjectionIsHealthy reports whether workspacePath is a symlink whose
// target still exists on disk (spec's SPEC_FULL.md §4 change-detection
// supplement: a dangling projection forces re-realization).
func ProjectionIsHealthy(workspacePath string) bool {
	info, err := os.Lstat(workspacePath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	_, err = os.Stat(workspacePath) // follows the symlink; fails if target is gone
	return err == nil
}

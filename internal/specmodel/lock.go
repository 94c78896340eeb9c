package specmodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
)

// NewResolvedLock builds a ResolvedLock from a validated Spec, stamping the
// digest and resolution time. Callers have already substituted every ref
// with its resolved commit (spec §4.4 step 2, the Git Resolver pass).
func NewResolvedLock(resolved VersionSpec, resolvedAt int64) (*ResolvedLock, error) {
	digest, err := resolved.Digest()
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "computing spec digest", err)
	}
	return &ResolvedLock{
		VersionSpec: resolved,
		ResolvedAt:  resolvedAt,
		SpecDigest:  digest,
	}, nil
}

// LoadSpec reads and validates a VersionSpec from path.
func LoadSpec(path string) (*VersionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUsage, fmt.Sprintf("reading spec %s", path), err)
	}
	var s VersionSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errs.Wrap(errs.KindValidation, fmt.Sprintf("parsing spec %s", path), err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadLock reads a ResolvedLock from path without re-validating it: a Lock
// is produced by this binary, not hand-authored.
func LoadLock(path string) (*ResolvedLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUsage, fmt.Sprintf("reading lock %s", path), err)
	}
	var l ResolvedLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errs.Wrap(errs.KindValidation, fmt.Sprintf("parsing lock %s", path), err)
	}
	return &l, nil
}

// WriteLock serializes l as canonical JSON and publishes it atomically:
// write to a sibling temp file, fsync, then rename over path. This matches
// the CAS publication pattern used throughout the store (spec §4.3).
func WriteLock(path string, l *ResolvedLock) error {
	data, err := CanonicalJSON(l)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "encoding lock", err)
	}
	return atomicWrite(path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("creating %s", dir), err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-lock-*")
	if err != nil {
		return errs.Wrap(errs.KindInternal, "creating temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindInternal, "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindInternal, "syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindInternal, "closing temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("publishing %s", path), err)
	}
	return nil
}

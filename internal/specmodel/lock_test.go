package specmodel

import (
	"path/filepath"
	"testing"
)

func TestWriteLoadLock_RoundTrip(t *testing.T) {
	s := validSpec()
	s.EngineSource.Ref = ""
	s.EngineSource.Commit = "abc123"

	lock, err := NewResolvedLock(s, 1700000000)
	if err != nil {
		t.Fatalf("NewResolvedLock() error = %v", err)
	}
	if lock.SpecDigest == "" {
		t.Fatal("SpecDigest must not be empty")
	}

	path := filepath.Join(t.TempDir(), "version.lock.json")
	if err := WriteLock(path, lock); err != nil {
		t.Fatalf("WriteLock() error = %v", err)
	}

	loaded, err := LoadLock(path)
	if err != nil {
		t.Fatalf("LoadLock() error = %v", err)
	}
	if loaded.SpecDigest != lock.SpecDigest {
		t.Fatalf("SpecDigest = %q, want %q", loaded.SpecDigest, lock.SpecDigest)
	}
	if loaded.VersionID != lock.VersionID {
		t.Fatalf("VersionID = %q, want %q", loaded.VersionID, lock.VersionID)
	}
}

func TestWriteLock_Idempotent(t *testing.T) {
	s := validSpec()
	lock, _ := NewResolvedLock(s, 1700000000)

	path := filepath.Join(t.TempDir(), "version.lock.json")
	if err := WriteLock(path, lock); err != nil {
		t.Fatalf("first WriteLock() error = %v", err)
	}
	first, _ := LoadLock(path)

	if err := WriteLock(path, lock); err != nil {
		t.Fatalf("second WriteLock() error = %v", err)
	}
	second, _ := LoadLock(path)

	if first.SpecDigest != second.SpecDigest {
		t.Fatal("re-writing the same lock changed its digest")
	}
}

func TestLoadSpec_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.json")
	if err := atomicWrite(path, []byte(`{"schema_version":1,"version_id":"v1"}`)); err != nil {
		t.Fatalf("atomicWrite() error = %v", err)
	}
	if _, err := LoadSpec(path); err == nil {
		t.Fatal("expected validation error for schema_version mismatch")
	}
}

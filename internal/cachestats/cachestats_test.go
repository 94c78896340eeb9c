package cachestats

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func TestScan_EmptyDirIsZeroed(t *testing.T) {
	snap, err := Scan("sources", t.TempDir())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if snap.Entries != 0 || snap.Bytes != 0 {
		t.Fatalf("snap = %+v, want zeroed", snap)
	}
}

func TestScan_MissingDirIsZeroed(t *testing.T) {
	snap, err := Scan("sources", filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if snap.Entries != 0 {
		t.Fatalf("snap = %+v, want zeroed for missing dir", snap)
	}
}

func TestScan_CountsFilesAndBytes(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sha256", "ab"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sha256", "ab", "blob"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sha256", "other"), []byte("ab"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := Scan("models", root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if snap.Entries != 2 {
		t.Fatalf("Entries = %d, want 2", snap.Entries)
	}
	if snap.Bytes != 7 {
		t.Fatalf("Bytes = %d, want 7", snap.Bytes)
	}
}

func TestReporter_StartAndStop(t *testing.T) {
	root := t.TempDir()
	r := NewReporter(filepath.Join(root, "sources"), filepath.Join(root, "models"), logging.NewDefault())
	if err := r.Start("@every 50ms"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	r.Stop()
}

func TestReporter_Start_RejectsBadSchedule(t *testing.T) {
	r := NewReporter("a", "b", logging.NewDefault())
	if err := r.Start("not a cron expression"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

package jobhandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/fetch"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func TestHandler_Deliver_Base64(t *testing.T) {
	dir := t.TempDir()
	outputFile := filepath.Join(dir, "out.png")
	if err := os.WriteFile(outputFile, []byte("rendered"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := New(Deps{Log: logging.NewDefault()})
	payload := &Payload{VersionID: "v1", OutputMode: "base64"}

	resp, err := h.deliver(context.Background(), payload, "req1", outputFile)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if resp.Base64 == "" {
		t.Fatal("expected non-empty base64 payload")
	}
	if resp.Size != int64(len("rendered")) {
		t.Fatalf("Size = %d", resp.Size)
	}
}

func TestHandler_Deliver_Object(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	outputFile := filepath.Join(dir, "out.png")
	if err := os.WriteFile(outputFile, []byte("rendered"), 0o644); err != nil {
		t.Fatal(err)
	}

	uploader := fetch.NewUploader(fetch.UploaderConfig{
		Endpoint: srv.URL,
		Bucket:   "outputs",
	}, logging.NewDefault())

	h := New(Deps{Log: logging.NewDefault(), Uploader: uploader})
	payload := &Payload{VersionID: "v1", OutputMode: "object", ObjectBucket: "outputs", ObjectPrefix: "custom/prefix"}

	resp, err := h.deliver(context.Background(), payload, "req1", outputFile)
	if err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if resp.ObjectURL == "" {
		t.Fatal("expected non-empty object URL")
	}
	if !strings.Contains(gotPath, "/outputs/custom/prefix/req1_") {
		t.Fatalf("uploaded path = %s, want it to contain payload's object_prefix", gotPath)
	}
}

func TestHandler_Deliver_ObjectWithoutUploaderFails(t *testing.T) {
	dir := t.TempDir()
	outputFile := filepath.Join(dir, "out.png")
	if err := os.WriteFile(outputFile, []byte("rendered"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := New(Deps{Log: logging.NewDefault()})
	payload := &Payload{VersionID: "v1", OutputMode: "object", ObjectBucket: "outputs"}

	if _, err := h.deliver(context.Background(), payload, "req1", outputFile); err == nil {
		t.Fatal("expected error when Uploader is nil")
	}
}

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func TestDeliverBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	body := []byte("fake png bytes")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := DeliverBase64("out.png", path)
	if err != nil {
		t.Fatalf("DeliverBase64() error = %v", err)
	}
	if res.Mode != "base64" {
		t.Fatalf("Mode = %q, want base64", res.Mode)
	}
	decoded, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil || string(decoded) != string(body) {
		t.Fatalf("round-trip mismatch: %v", err)
	}
	sum := sha256.Sum256(body)
	if res.SHA256 != fmt.Sprintf("%x", sum) {
		t.Fatalf("SHA256 = %s, want %x", res.SHA256, sum)
	}
}

func TestUploader_DeliverObject(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewUploader(UploaderConfig{Endpoint: srv.URL, Bucket: "outputs", Prefix: "job-1"}, logging.NewDefault())

	dir := t.TempDir()
	path := filepath.Join(dir, "result.bin")
	body := []byte("result bytes")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := u.DeliverObject(context.Background(), "result.bin", path)
	if err != nil {
		t.Fatalf("DeliverObject() error = %v", err)
	}
	if res.Mode != "object" || res.Bucket != "outputs" || res.Key != "job-1/result.bin" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if string(received) != string(body) {
		t.Fatal("uploaded body mismatch")
	}
}

func TestUploader_DeliverObject_SignedURLWhenPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u := NewUploader(UploaderConfig{Endpoint: srv.URL, Bucket: "outputs", Prefix: "job-1", Public: true}, logging.NewDefault())

	dir := t.TempDir()
	path := filepath.Join(dir, "result.bin")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := u.DeliverObject(context.Background(), "result.bin", path)
	if err != nil {
		t.Fatalf("DeliverObject() error = %v", err)
	}
	if res.SignedURL == "" {
		t.Fatal("expected a signed URL when Public is set")
	}
}

package engineclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func TestWaitReady_SucceedsOnceUp(t *testing.T) {
	var ready int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	go func() {
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&ready, 1)
	}()

	c := New(srv.URL, logging.NewDefault())
	if err := c.WaitReady(context.Background(), time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}

func TestWaitReady_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, logging.NewDefault())
	err := c.WaitReady(context.Background(), 30*time.Millisecond, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSubmitGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if _, ok := body["prompt"]; !ok {
			t.Fatal("expected a prompt field in the submitted body")
		}
		json.NewEncoder(w).Encode(QueueResult{PromptID: "abc-123"})
	}))
	defer srv.Close()

	c := New(srv.URL, logging.NewDefault())
	res, err := c.SubmitGraph(context.Background(), map[string]interface{}{"1": map[string]interface{}{}}, "client-1")
	if err != nil {
		t.Fatalf("SubmitGraph() error = %v", err)
	}
	if res.PromptID != "abc-123" {
		t.Fatalf("PromptID = %s, want abc-123", res.PromptID)
	}
}

func TestWaitForCompletion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		resp := map[string]HistoryEntry{}
		entry := HistoryEntry{}
		entry.Status.Completed = n >= 2
		if entry.Status.Completed {
			entry.Outputs = map[string]NodeOutput{
				"9": {Images: []OutputFile{{Filename: "out.png", Type: "output"}}},
			}
		}
		resp["abc-123"] = entry
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL, logging.NewDefault())
	entry, err := c.WaitForCompletion(context.Background(), "abc-123", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion() error = %v", err)
	}
	if !entry.Status.Completed {
		t.Fatal("expected completed entry")
	}
	if len(entry.Outputs["9"].Images) != 1 {
		t.Fatalf("expected 1 output image, got %d", len(entry.Outputs["9"].Images))
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	c := New("http://127.0.0.1:8188/", logging.NewDefault())
	if c.baseURL != "http://127.0.0.1:8188" {
		t.Fatalf("baseURL = %s, want trailing slash stripped", c.baseURL)
	}
}

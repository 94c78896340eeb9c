// Package engineclient is the HTTP(+websocket) client the Job Handler uses
// to talk to a launched Engine process's local API (spec §4.8 "Invoke the
// Engine").
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/errs"
	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

// Client talks to one running Engine instance over HTTP, and optionally a
// websocket for progress events.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logging.Logger
}

// New creates a Client for an Engine listening at baseURL (e.g.
// "http://127.0.0.1:8188").
func New(baseURL string, log *logging.Logger) *Client {
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// normalizeBaseURL strips a trailing slash so endpoint joins don't produce
// a doubled separator.
func normalizeBaseURL(raw string) string {
	return strings.TrimRight(raw, "/")
}

// WaitReady polls the Engine's status endpoint until it answers 200 or
// timeout elapses, at the given polling granularity (spec §4.8: "default
// 60s, 1s granularity").
func (c *Client) WaitReady(ctx context.Context, timeout, granularity time.Duration) error {
	deadline := time.Now().Add(timeout)
	limiter := rate.NewLimiter(rate.Every(granularity), 1)

	for {
		if c.isReady(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.New(errs.KindEngineStart, fmt.Sprintf("engine not ready after %s", timeout))
		}
		if err := limiter.Wait(ctx); err != nil {
			return errs.Wrap(errs.KindEngineStart, "waiting for engine readiness", err)
		}
	}
}

func (c *Client) isReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/system_stats", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// QueueResult is the Engine's response to submitting a graph.
type QueueResult struct {
	PromptID string `json:"prompt_id"`
}

// SubmitGraph posts a rewritten graph to the Engine's queue endpoint.
func (c *Client) SubmitGraph(ctx context.Context, graph map[string]interface{}, clientID string) (*QueueResult, error) {
	payload := map[string]interface{}{"prompt": graph}
	if clientID != "" {
		payload["client_id"] = clientID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "encoding graph submission", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.KindEngineExec, "building submit request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindEngineExec, "submitting graph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(resp.Body)
		return nil, errs.New(errs.KindEngineExec, fmt.Sprintf("submit graph: status %d: %s", resp.StatusCode, out))
	}

	var qr QueueResult
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, errs.Wrap(errs.KindEngineExec, "decoding submit response", err)
	}
	return &qr, nil
}

// HistoryEntry is one prompt's recorded outputs, as returned by the
// Engine's /history/<prompt_id> endpoint.
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  struct {
		Completed bool `json:"completed"`
	} `json:"status"`
}

// NodeOutput carries the produced filenames for one graph node.
type NodeOutput struct {
	Images []OutputFile `json:"images,omitempty"`
	Gifs   []OutputFile `json:"gifs,omitempty"`
}

// OutputFile identifies one produced artifact within the Engine's output
// directory.
type OutputFile struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// WaitForCompletion polls /history/<promptID> until the Engine reports the
// prompt complete. It does not report progress; progress events come only
// from the websocket channel opened via Progress.
func (c *Client) WaitForCompletion(ctx context.Context, promptID string, pollInterval time.Duration) (*HistoryEntry, error) {
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)

	for {
		entry, ok, err := c.history(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if ok && entry.Status.Completed {
			return entry, nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, errs.Wrap(errs.KindEngineExec, "waiting for graph completion", err)
		}
	}
}

func (c *Client) history(ctx context.Context, promptID string) (*HistoryEntry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+promptID, nil)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindEngineExec, "building history request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindEngineExec, "querying history", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	var history map[string]HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, false, errs.Wrap(errs.KindEngineExec, "decoding history response", err)
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// ProgressEvent is one decoded websocket message from the Engine's
// /ws progress channel.
type ProgressEvent struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Progress opens a websocket connection to the Engine and streams decoded
// progress events until ctx is cancelled or the connection closes. This is
// optional telemetry; callers that only need completion should rely on
// WaitForCompletion instead.
func (c *Client) Progress(ctx context.Context, clientID string) (<-chan ProgressEvent, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws?clientId=" + clientID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindEngineExec, "opening engine progress websocket", err)
	}

	events := make(chan ProgressEvent)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var ev ProgressEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

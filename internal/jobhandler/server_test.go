package jobhandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/logging"
)

func TestServer_Healthz(t *testing.T) {
	h := New(Deps{Log: logging.NewDefault()})
	s := NewServer(h, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestServer_Invoke_RejectsMissingLock(t *testing.T) {
	h := New(Deps{Log: logging.NewDefault()})
	s := NewServer(h, t.TempDir())

	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(`{"payload": {}}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Invoke_RejectsInvalidPayload(t *testing.T) {
	h := New(Deps{Log: logging.NewDefault()})
	s := NewServer(h, t.TempDir())

	body := `{"lock": {"schema_version": 2, "version_id": "v1", "resolved_at": 1, "spec_digest": "x"}, "payload": {}}`
	req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, "payload missing version_id should be rejected")
}

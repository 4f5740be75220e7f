package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sonara-ai/sonara/pkg/gateway/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Addr:            ":0",
		OpenAIAPIKey:    "sk-test",
		SpeechURL:       "wss://speech.invalid/v1/realtime",
		SpeechModel:     "test-model",
		Voice:           "alloy",
		KBIndexPath:     filepath.Join(dir, "kb_index.json"),
		KBTopK:          4,
		KBMinScore:      0.25,
		GapLogPath:      filepath.Join(dir, "gaps.jsonl"),
		WebhookAttempts: 1,
		ClearCooldown:   250 * time.Millisecond,
		LookupTimeout:   time.Second,
		WSWriteTimeout:  time.Second,
		WSPingInterval:  time.Minute,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestServerReadyzAndDrain(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Fatalf("readyz status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK             bool `json:"ok"`
		ActiveSessions int  `json:"active_sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("readyz body: %v", err)
	}
	if !resp.OK || resp.ActiveSessions != 0 {
		t.Fatalf("readyz = %+v, want ok with zero sessions", resp)
	}

	s.SetDraining()
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Fatalf("readyz status while draining = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/voice", nil))
	if rec.Code != 503 {
		t.Fatalf("voice status while draining = %d, want 503", rec.Code)
	}
}

func TestServerVoiceRoute(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	req := httptest.NewRequest("POST", "/voice?From=%2B15550001111", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("voice status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body == "" {
		t.Fatal("voice response is empty")
	}
}

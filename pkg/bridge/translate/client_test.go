package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.TargetLanguage != "es" {
			t.Errorf("target language = %q", req.TargetLanguage)
		}
		out := make(map[string]string, len(req.Fields))
		for k, v := range req.Fields {
			out[k] = "es:" + v
		}
		_ = json.NewEncoder(w).Encode(translateResponse{Fields: out})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	got, err := client.Translate(context.Background(), map[string]string{"reason": "running late"}, "es")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got["reason"] != "es:running late" {
		t.Fatalf("fields = %v", got)
	}
}

func TestTranslateUnconfigured(t *testing.T) {
	t.Parallel()

	client := NewClient("")
	if _, err := client.Translate(context.Background(), map[string]string{"k": "v"}, "es"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTranslateServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.Translate(context.Background(), map[string]string{"k": "v"}, "es"); err == nil {
		t.Fatal("expected error")
	}
}

type fakeTranslator struct {
	fields map[string]string
	err    error
}

func (f *fakeTranslator) Translate(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error) {
	return f.fields, f.err
}

func TestBestEffortMergesTranslations(t *testing.T) {
	t.Parallel()

	translator := &fakeTranslator{fields: map[string]string{
		"reason": "motivo traducido",
		"note":   "   ",
	}}
	got := BestEffort(context.Background(), translator, map[string]string{
		"reason": "original reason",
		"note":   "original note",
	}, "es", testLogger())

	if got["reason"] != "motivo traducido" {
		t.Fatalf("reason = %q", got["reason"])
	}
	// Blank translations keep the original value.
	if got["note"] != "original note" {
		t.Fatalf("note = %q", got["note"])
	}
}

func TestBestEffortFailureKeepsOriginals(t *testing.T) {
	t.Parallel()

	translator := &fakeTranslator{err: fmt.Errorf("boom")}
	fields := map[string]string{"reason": "running late"}
	got := BestEffort(context.Background(), translator, fields, "es", testLogger())
	if got["reason"] != "running late" {
		t.Fatalf("fields = %v", got)
	}
}

func TestBestEffortNoTargetLanguage(t *testing.T) {
	t.Parallel()

	translator := &fakeTranslator{fields: map[string]string{"reason": "should not be used"}}
	got := BestEffort(context.Background(), translator, map[string]string{"reason": "keep me"}, "", testLogger())
	if got["reason"] != "keep me" {
		t.Fatalf("fields = %v", got)
	}
}

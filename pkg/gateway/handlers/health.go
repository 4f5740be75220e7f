// Package handlers contains the gateway's HTTP endpoints: health probes,
// the telephony voice webhook, and the media-stream websocket entry point.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sonara-ai/sonara/pkg/gateway/config"
	"github.com/sonara-ai/sonara/pkg/gateway/lifecycle"
	"github.com/sonara-ai/sonara/pkg/kb"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the gateway can usefully accept calls. A
// missing knowledge index is reported but does not fail readiness; calls
// work without it.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	KBStore   *kb.Store
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Draining       bool     `json:"draining"`
		ActiveSessions int      `json:"active_sessions"`
		KBReady        bool     `json:"kb_ready"`
		KBChunks       int      `json:"kb_chunks"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "speech engine api key is not configured")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	kbChunks := 0
	kbReady := false
	if idx := h.KBStore.Snapshot(); idx != nil {
		kbReady = true
		kbChunks = len(idx.Chunks)
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		Draining:       draining,
		ActiveSessions: h.Lifecycle.ActiveSessions(),
		KBReady:        kbReady,
		KBChunks:       kbChunks,
		Issues:         issues,
	})
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sonara-ai/sonara/pkg/bridge/crm"
	"github.com/sonara-ai/sonara/pkg/bridge/session"
	"github.com/sonara-ai/sonara/pkg/bridge/speech"
	"github.com/sonara-ai/sonara/pkg/bridge/tools"
	"github.com/sonara-ai/sonara/pkg/gateway/config"
	"github.com/sonara-ai/sonara/pkg/gateway/lifecycle"
)

// StreamHandler upgrades /media-stream and runs one bridge session per
// connection.
type StreamHandler struct {
	Config    config.Config
	Logger    *slog.Logger
	Lifecycle *lifecycle.Lifecycle
	Engine    speech.Dialer
	Contacts  crm.Lookup
	Tools     *tools.Dispatcher
}

// engineDialer narrows *speech.Conn to the session's engine interface.
type engineDialer struct {
	dialer speech.Dialer
}

func (d engineDialer) Dial(ctx context.Context) (session.EngineConn, error) {
	return d.dialer.Dial(ctx)
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	release := h.Lifecycle.SessionStarted()
	defer release()

	s, err := session.New(session.Dependencies{
		Conn:     conn,
		Engine:   engineDialer{dialer: h.Engine},
		Contacts: h.Contacts,
		Tools:    h.Tools,
		Logger:   h.Logger,
		Config: session.Config{
			LookupTimeout:     h.Config.LookupTimeout,
			ClearCooldown:     h.Config.ClearCooldown,
			WriteTimeout:      h.Config.WSWriteTimeout,
			PingInterval:      h.Config.WSPingInterval,
			MaxFrameBytes:     h.Config.WSMaxFrameBytes,
			OutboundQueueSize: h.Config.OutboundQueueSize,
			Voice:             h.Config.Voice,
			Greeting:          h.Config.Greeting,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to initialize session", "error", err)
		}
		_ = conn.Close()
		return
	}

	if err := s.Run(); err != nil && h.Logger != nil {
		h.Logger.Warn("session ended with error", "error", err)
	}
}

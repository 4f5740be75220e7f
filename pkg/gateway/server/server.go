// Package server wires the gateway together: configuration in, HTTP routes
// and per-call session dependencies out.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sonara-ai/sonara/pkg/bridge/crm"
	"github.com/sonara-ai/sonara/pkg/bridge/speech"
	"github.com/sonara-ai/sonara/pkg/bridge/tools"
	"github.com/sonara-ai/sonara/pkg/bridge/translate"
	"github.com/sonara-ai/sonara/pkg/bridge/webhook"
	"github.com/sonara-ai/sonara/pkg/gateway/config"
	"github.com/sonara-ai/sonara/pkg/gateway/handlers"
	"github.com/sonara-ai/sonara/pkg/gateway/lifecycle"
	"github.com/sonara-ai/sonara/pkg/gateway/mw"
	"github.com/sonara-ai/sonara/pkg/kb"
	"github.com/sonara-ai/sonara/pkg/kb/embed"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	lifecycle  *lifecycle.Lifecycle
	engine     speech.Dialer
	contacts   crm.Lookup
	dispatcher *tools.Dispatcher
	kbStore    *kb.Store
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engine, err := speech.NewDialer(speech.Config{
		BaseURL: cfg.SpeechURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.SpeechModel,
	})
	if err != nil {
		return nil, err
	}

	var contacts crm.Lookup
	if cfg.CRMBaseURL != "" {
		contacts = crm.NewClient(cfg.CRMBaseURL)
	}

	var translator translate.Translator
	if cfg.TranslateBaseURL != "" {
		translator = translate.NewClient(cfg.TranslateBaseURL)
	}

	sender := webhook.NewClient(cfg.WebhookURL, logger, webhook.WithAttempts(cfg.WebhookAttempts))
	gapLog := tools.NewGapLog(cfg.GapLogPath)

	kbStore := kb.NewStore(cfg.KBIndexPath)
	if err := kbStore.Reload(); err != nil {
		logger.Warn("knowledge index unavailable at startup", "path", cfg.KBIndexPath, "error", err)
	}
	embedder := embed.NewClient(cfg.OpenAIAPIKey, embed.WithModel(cfg.EmbedModel))

	registry := tools.NewRegistry(
		&tools.ScheduleCallbackHandler{Webhook: sender, Translator: translator, Logger: logger},
		&tools.UpdateContactInfoHandler{Webhook: sender, Translator: translator, Logger: logger},
		&tools.LogUnknownQuestionHandler{GapLog: gapLog, Webhook: sender, Logger: logger},
		&tools.SearchKnowledgeHandler{
			Store:    kbStore,
			Embedder: embedder,
			TopK:     cfg.KBTopK,
			MinScore: cfg.KBMinScore,
			GapLog:   gapLog,
			Logger:   logger,
		},
	)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		lifecycle:  &lifecycle.Lifecycle{},
		engine:     engine,
		contacts:   contacts,
		dispatcher: tools.NewDispatcher(registry, logger),
		kbStore:    kbStore,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		KBStore:   s.kbStore,
	})
	s.mux.Handle("/voice", handlers.VoiceHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
	s.mux.Handle("/media-stream", handlers.StreamHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Engine:    s.engine,
		Contacts:  s.contacts,
		Tools:     s.dispatcher,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so the load balancer stops routing new calls.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) ActiveSessions() int {
	return s.lifecycle.ActiveSessions()
}

// WaitSessions blocks until every live call has ended or ctx expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.lifecycle.WaitIdle(ctx)
}

// Package session owns the lifetime of one phone call: it bridges the
// telephony media stream and the speech engine connection, relays audio both
// ways, handles barge-in, and routes the engine's tool invocations through
// the dispatcher.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonara-ai/sonara/pkg/bridge/crm"
	"github.com/sonara-ai/sonara/pkg/bridge/speech"
	"github.com/sonara-ai/sonara/pkg/bridge/telephony"
	"github.com/sonara-ai/sonara/pkg/bridge/tools"
)

type State string

const (
	StateConnecting    State = "connecting"
	StateAwaitingStart State = "awaiting_start"
	StateActive        State = "active"
	StateSpeaking      State = "speaking"
	StateClosed        State = "closed"
)

const (
	DefaultClearCooldown = 250 * time.Millisecond
	DefaultAudioCodec    = "g711_ulaw"

	maxCanceledResponses = 64
)

const (
	knownCallerPrompt = "You are a friendly phone agent for the company. The caller is a known contact; use their name, reference their account naturally, and keep answers short and spoken-word friendly. Use the provided tools for anything you cannot answer directly."

	unknownCallerPrompt = "You are a friendly phone agent for the company. The caller is not in our records; politely collect their name and company when it comes up naturally. Keep answers short and spoken-word friendly. Use the provided tools for anything you cannot answer directly."
)

// telephonyConn is the subset of *websocket.Conn the session needs; tests
// substitute a fake peer.
type telephonyConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// EngineConn is the speech-engine side of the bridge. *speech.Conn satisfies
// it in production.
type EngineConn interface {
	Configure(cfg speech.SessionConfig) error
	AppendAudio(audioB64 string) error
	CancelResponse() error
	SendToolResult(callID, output string) error
	CreateResponse(instructions string) error
	ReadEvent() (speech.ServerEvent, error)
	Close() error
}

type EngineDialer interface {
	Dial(ctx context.Context) (EngineConn, error)
}

type Config struct {
	LookupTimeout     time.Duration
	ClearCooldown     time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	MaxFrameBytes     int64
	OutboundQueueSize int
	Voice             string
	AudioCodec        string
	Greeting          string
}

type Dependencies struct {
	Conn     telephonyConn
	Engine   EngineDialer
	Contacts crm.Lookup
	Tools    *tools.Dispatcher
	Logger   *slog.Logger
	Config   Config
	Now      func() time.Time
}

type Session struct {
	conn     telephonyConn
	dialer   EngineDialer
	contacts crm.Lookup
	tools    *tools.Dispatcher
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	stateMu   sync.Mutex
	state     State
	sessionID string
	caller    string
	profile   crm.Profile
	engine    EngineConn

	lastClearAt      time.Time
	activeResponseID string

	canceledMu    sync.Mutex
	canceledSet   map[string]struct{}
	canceledOrder []string

	toolWG sync.WaitGroup
}

type inboundFrame struct {
	frame telephony.Frame
	err   error
}

type engineEvent struct {
	event speech.ServerEvent
	err   error
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("telephony connection is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine dialer is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.LookupTimeout <= 0 {
		deps.Config.LookupTimeout = crm.DefaultLookupTimeout
	}
	if deps.Config.ClearCooldown <= 0 {
		deps.Config.ClearCooldown = DefaultClearCooldown
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}
	if strings.TrimSpace(deps.Config.AudioCodec) == "" {
		deps.Config.AudioCodec = DefaultAudioCodec
	}
	if strings.TrimSpace(deps.Config.Greeting) == "" {
		deps.Config.Greeting = "Greet the caller warmly and ask how you can help."
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:             deps.Conn,
		dialer:           deps.Engine,
		contacts:         deps.Contacts,
		tools:            deps.Tools,
		logger:           deps.Logger,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		state:            StateConnecting,
		canceledSet:      make(map[string]struct{}),
	}, nil
}

// Run drives the session until either side closes. Closing one side always
// closes the other; Run never returns with a half-open pair.
func (s *Session) Run() error {
	defer s.shutdown()

	if s.cfg.MaxFrameBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxFrameBytes)
	}
	s.setState(StateAwaitingStart)

	readCh := make(chan inboundFrame, 64)
	// The read loop gets its own logger handle: handleStart swaps s.logger for
	// a per-session child on the event-loop goroutine.
	go s.telephonyReadLoop(readCh, s.logger)

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			writeTimeout: s.cfg.WriteTimeout,
			pingInterval: s.cfg.PingInterval,
			priority:     s.outboundPriority,
			normal:       s.outboundNormal,
			isCanceled:   s.isResponseCanceled,
		}
		writerErrCh <- w.Run()
	}()

	engineEvents := make(chan engineEvent, 64)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerErrCh:
			if err != nil {
				s.logger.Warn("telephony writer failed", "error", err)
			}
			return err
		case in, ok := <-readCh:
			if !ok || in.err != nil {
				return nil
			}
			switch in.frame.Event {
			case telephony.EventStart:
				if err := s.handleStart(in.frame.Start, engineEvents); err != nil {
					s.logger.Error("session start failed", "error", err)
					return err
				}
			case telephony.EventMedia:
				s.handleMedia(in.frame.Media)
			case telephony.EventStop:
				s.logger.Info("telephony stream stopped", "session_id", s.sessionID)
				return nil
			default:
				// connected, mark, dtmf and friends carry nothing to relay.
			}
		case ev := <-engineEvents:
			if ev.err != nil {
				s.logger.Info("speech engine connection ended", "session_id", s.sessionID, "error", ev.err)
				return nil
			}
			s.handleEngineEvent(ev.event)
		}
	}
}

// State reports the current lifecycle state. Intended for observability, not
// synchronization.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

func (s *Session) shutdown() {
	s.setState(StateClosed)
	s.cancel()
	if s.engine != nil {
		_ = s.engine.Close()
	}
	// Give the writer a moment to flush any queued clear frame and send the
	// close message before the socket drops.
	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()
	<-timer.C
	_ = s.conn.Close()
	s.toolWG.Wait()
}

func (s *Session) telephonyReadLoop(out chan<- inboundFrame, logger *slog.Logger) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		frame, err := telephony.DecodeFrame(data)
		if err != nil {
			// Malformed frames are dropped, never fatal.
			logger.Warn("dropping malformed telephony frame", "error", err)
			continue
		}
		select {
		case out <- inboundFrame{frame: frame}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) engineReadLoop(conn EngineConn, out chan<- engineEvent) {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			select {
			case out <- engineEvent{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- engineEvent{event: event}:
		case <-s.ctx.Done():
			return
		}
	}
}

// handleStart runs once per call: it pins the stream id, resolves the
// contact profile under a hard timeout, and opens and configures the engine
// connection before any audio is relayed.
func (s *Session) handleStart(start *telephony.StartPayload, engineEvents chan<- engineEvent) error {
	if s.sessionID != "" {
		s.logger.Warn("duplicate start frame ignored", "session_id", s.sessionID)
		return nil
	}
	s.sessionID = start.StreamSid
	s.caller = start.CallerIdentity()
	s.logger = s.logger.With("session_id", s.sessionID)
	s.logger.Info("call started", "caller", s.caller)

	s.profile = crm.ResolveWithTimeout(s.ctx, s.contacts, s.caller, s.cfg.LookupTimeout, s.logger)

	conn, err := s.dialer.Dial(s.ctx)
	if err != nil {
		return fmt.Errorf("open speech engine connection: %w", err)
	}
	s.engine = conn

	if err := conn.Configure(s.sessionConfig()); err != nil {
		return fmt.Errorf("configure speech engine: %w", err)
	}
	if err := conn.CreateResponse(s.greetingInstruction()); err != nil {
		return fmt.Errorf("request greeting: %w", err)
	}

	go s.engineReadLoop(conn, engineEvents)
	s.setState(StateActive)
	return nil
}

func (s *Session) sessionConfig() speech.SessionConfig {
	prompt := unknownCallerPrompt
	if s.profile.Found {
		prompt = knownCallerPrompt + "\n\nCaller: " + s.profile.Name
		if s.profile.Company != "" {
			prompt += " (" + s.profile.Company + ")"
		}
	}
	return speech.SessionConfig{
		TurnDetection:     &speech.TurnDetection{Type: "server_vad"},
		InputAudioFormat:  s.cfg.AudioCodec,
		OutputAudioFormat: s.cfg.AudioCodec,
		Voice:             s.cfg.Voice,
		Instructions:      prompt,
		Modalities:        []string{"text", "audio"},
		Temperature:       0.8,
		Tools:             s.tools.Registry().Definitions(),
	}
}

func (s *Session) greetingInstruction() string {
	if s.profile.Found && s.profile.Name != "" {
		return s.cfg.Greeting + " Greet them by name: " + s.profile.Name + "."
	}
	return s.cfg.Greeting
}

// handleMedia forwards one caller audio payload upstream. Frames arriving
// before the engine connection is ready are dropped, not buffered.
func (s *Session) handleMedia(media *telephony.MediaPayload) {
	if s.engine == nil {
		s.logger.Debug("dropping media frame, engine not ready")
		return
	}
	if err := s.engine.AppendAudio(media.Payload); err != nil {
		s.logger.Warn("failed to forward audio to engine", "error", err)
	}
}

func (s *Session) handleEngineEvent(event speech.ServerEvent) {
	switch event.Type {
	case speech.EventAudioDelta:
		s.setState(StateSpeaking)
		if event.ResponseID != "" {
			s.activeResponseID = event.ResponseID
		}
		s.sendEngineAudio(event.ResponseID, event.Delta)
	case speech.EventSpeechStarted:
		s.handleBargeIn()
	case speech.EventResponseDone:
		if s.State() == StateSpeaking {
			s.setState(StateActive)
		}
		s.activeResponseID = ""
	case speech.EventFunctionCall:
		s.dispatchTool(event)
	case speech.EventError:
		message := ""
		if event.Error != nil {
			message = event.Error.Message
		}
		s.logger.Warn("speech engine reported error", "message", message)
	default:
		// transcript, rate-limit and lifecycle events are not relayed.
	}
}

// sendEngineAudio relays one outbound audio delta tagged with the stream id.
func (s *Session) sendEngineAudio(responseID, deltaB64 string) {
	payload, err := telephony.EncodeMedia(s.sessionID, deltaB64)
	if err != nil {
		s.logger.Warn("failed to encode outbound media frame", "error", err)
		return
	}
	frame := outboundFrame{payload: payload, responseID: responseID}
	select {
	case s.outboundNormal <- frame:
	case <-s.ctx.Done():
	default:
		// Dropping late audio beats blocking the event loop.
		s.logger.Warn("outbound audio queue full, dropping frame")
	}
}

// handleBargeIn flushes the telephony playback buffer and cancels the
// engine's in-flight response. Within the cooldown window a second speech
// start is ignored so the caller does not hear stutter from repeated clears.
func (s *Session) handleBargeIn() {
	if s.State() != StateSpeaking {
		return
	}
	now := s.now()
	if !s.lastClearAt.IsZero() && now.Sub(s.lastClearAt) < s.cfg.ClearCooldown {
		return
	}
	s.lastClearAt = now

	if s.activeResponseID != "" {
		s.markResponseCanceled(s.activeResponseID)
	}

	payload, err := telephony.EncodeClear(s.sessionID)
	if err != nil {
		s.logger.Warn("failed to encode clear frame", "error", err)
	} else {
		select {
		case s.outboundPriority <- outboundFrame{payload: payload}:
		case <-s.ctx.Done():
			return
		}
	}

	if err := s.engine.CancelResponse(); err != nil {
		s.logger.Warn("failed to cancel engine response", "error", err)
	}
	s.logger.Info("barge-in handled", "response_id", s.activeResponseID)
}

// dispatchTool runs the invocation off the event loop so a slow action never
// stalls audio relay. The correlated result and follow-up go straight to the
// engine connection, whose writes are serialized. A response trigger is sent
// even when the outcome carries no follow-up text: the engine only speaks the
// tool output once a response is requested, so an empty follow-up becomes a
// bare trigger with no instruction attached. Session close does not cancel an
// action already in flight.
func (s *Session) dispatchTool(event speech.ServerEvent) {
	inv := tools.Invocation{
		Name:   event.Name,
		CallID: event.CallID,
		Args:   event.FunctionArguments(),
	}
	sessionCtx := tools.SessionContext{
		SessionID: s.sessionID,
		Caller:    s.caller,
		Profile:   s.profile,
	}
	engine := s.engine
	toolCtx := context.WithoutCancel(s.ctx)

	s.toolWG.Add(1)
	go func() {
		defer s.toolWG.Done()
		outcome := s.tools.Dispatch(toolCtx, inv, sessionCtx)
		if err := engine.SendToolResult(outcome.CallID, outcome.Output()); err != nil {
			s.logger.Warn("failed to send tool result", "tool", inv.Name, "error", err)
			return
		}
		if err := engine.CreateResponse(outcome.Followup); err != nil {
			s.logger.Warn("failed to request follow-up response", "tool", inv.Name, "error", err)
		}
	}()
}

func (s *Session) markResponseCanceled(responseID string) {
	s.canceledMu.Lock()
	defer s.canceledMu.Unlock()
	if _, exists := s.canceledSet[responseID]; exists {
		return
	}
	s.canceledSet[responseID] = struct{}{}
	s.canceledOrder = append(s.canceledOrder, responseID)
	if len(s.canceledOrder) > maxCanceledResponses {
		oldest := s.canceledOrder[0]
		s.canceledOrder = s.canceledOrder[1:]
		delete(s.canceledSet, oldest)
	}
}

func (s *Session) isResponseCanceled(responseID string) bool {
	s.canceledMu.Lock()
	defer s.canceledMu.Unlock()
	_, canceled := s.canceledSet[responseID]
	return canceled
}

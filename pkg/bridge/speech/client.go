package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL = "wss://api.openai.com/v1/realtime"
	DefaultModel   = "gpt-4o-realtime-preview"
	DefaultVoice   = "alloy"
)

type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dialer opens engine connections. The session bridge depends on this
// interface so tests can substitute a fake engine.
type Dialer interface {
	Dial(ctx context.Context) (*Conn, error)
}

type wsDialer struct {
	cfg Config
}

func NewDialer(cfg Config) (Dialer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("speech engine api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &wsDialer{cfg: cfg}, nil
}

func (d *wsDialer) Dial(ctx context.Context) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	url := d.cfg.BaseURL + "?model=" + d.cfg.Model
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial speech engine: %w", err)
	}
	return NewConn(ws, d.cfg.WriteTimeout), nil
}

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live engine connection. Writes are serialized behind a mutex
// so tool-dispatch goroutines and the session loop can share it; reads stay
// single-owner (the session's engine read loop).
type Conn struct {
	ws           wsConn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  bool
}

func NewConn(ws wsConn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return fmt.Errorf("engine connection is closed")
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Configure sends the one-time session-configuration message.
func (c *Conn) Configure(cfg SessionConfig) error {
	return c.send(sessionUpdate{Type: "session.update", Session: cfg})
}

// AppendAudio forwards one base64 audio payload to the engine's input buffer.
func (c *Conn) AppendAudio(audioB64 string) error {
	return c.send(inputAudioAppend{Type: "input_audio_buffer.append", Audio: audioB64})
}

// CancelResponse aborts the engine's in-flight response generation.
func (c *Conn) CancelResponse() error {
	return c.send(responseCancel{Type: "response.cancel"})
}

// SendToolResult echoes the invocation's correlation id with the
// JSON-encoded result payload.
func (c *Conn) SendToolResult(callID, output string) error {
	return c.send(conversationItemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{Type: "function_call_output", CallID: callID, Output: output},
	})
}

// CreateResponse asks the engine to produce its next response, optionally
// steered by a follow-up instruction.
func (c *Conn) CreateResponse(instructions string) error {
	msg := responseCreate{Type: "response.create"}
	if strings.TrimSpace(instructions) != "" {
		msg.Response = &responseDirective{Instructions: instructions}
	}
	return c.send(msg)
}

// ReadEvent blocks for the next engine event. Call only from a single
// goroutine.
func (c *Conn) ReadEvent() (ServerEvent, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return ServerEvent{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		event, err := DecodeServerEvent(data)
		if err != nil {
			// Malformed event; skip rather than kill the session.
			continue
		}
		return event, nil
	}
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Package speech implements the duplex realtime connection to the hosted
// speech engine: one session-configuration message at call start, audio
// append/cancel messages while the call runs, and typed decoding of the
// engine's event stream.
package speech

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool describes one function the engine may invoke mid-conversation.
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

// SessionConfig is sent exactly once per call as `session.update`.
type SessionConfig struct {
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Modalities        []string       `json:"modalities,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
	Tools             []Tool         `json:"tools,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type inputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type responseCancel struct {
	Type string `json:"type"`
}

type conversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type responseDirective struct {
	Instructions string `json:"instructions,omitempty"`
}

type responseCreate struct {
	Type     string             `json:"type"`
	Response *responseDirective `json:"response,omitempty"`
}

// Event type discriminators the session bridge reacts to.
const (
	EventAudioDelta    = "response.audio.delta"
	EventSpeechStarted = "input_audio_buffer.speech_started"
	EventFunctionCall  = "response.function_call_arguments.done"
	EventResponseDone  = "response.done"
	EventSessionUpdate = "session.updated"
	EventError         = "error"
)

// EngineError is the payload of an inbound `error` event.
type EngineError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ServerEvent is one decoded inbound engine event. Fields are populated
// according to Type; events the bridge does not handle still decode so the
// read loop can skip them without failing.
type ServerEvent struct {
	Type       string       `json:"type"`
	ResponseID string       `json:"response_id,omitempty"`
	ItemID     string       `json:"item_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	CallID     string       `json:"call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
	Arguments  string       `json:"arguments,omitempty"`
	Error      *EngineError `json:"error,omitempty"`
}

func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ServerEvent{}, fmt.Errorf("unparseable engine event: %w", err)
	}
	if strings.TrimSpace(event.Type) == "" {
		return ServerEvent{}, fmt.Errorf("engine event is missing type")
	}
	return event, nil
}

// FunctionArguments decodes the JSON-encoded argument map of a function-call
// event. Unparseable arguments come back as an empty map so a malformed call
// degrades to a failed tool result instead of a dropped event.
func (e ServerEvent) FunctionArguments() map[string]any {
	args := make(map[string]any)
	raw := strings.TrimSpace(e.Arguments)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}

// Package telephony defines the media-stream frames exchanged with the
// telephony provider over the per-call websocket. Inbound frames carry a
// discriminator field "event"; outbound frames echo the stream identifier
// assigned by the provider.
package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventClear     = "clear"
)

type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badFrame(message string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message}
}

// StartPayload arrives once per call and assigns the stream identifier.
// Caller identity and other call metadata ride in CustomParameters.
type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid,omitempty"`
	CallSid          string            `json:"callSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type Frame struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
}

// DecodeFrame parses one inbound frame. Unknown events decode successfully
// and are left to the caller to ignore; structurally broken frames fail with
// a DecodeError so the session can drop them without tearing down the call.
func DecodeFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, badFrame(fmt.Sprintf("unparseable frame: %v", err))
	}
	event := strings.TrimSpace(frame.Event)
	if event == "" {
		return Frame{}, badFrame("frame is missing event discriminator")
	}
	frame.Event = event
	switch event {
	case EventStart:
		if frame.Start == nil || strings.TrimSpace(frame.Start.StreamSid) == "" {
			return Frame{}, badFrame("start frame is missing streamSid")
		}
	case EventMedia:
		if frame.Media == nil || frame.Media.Payload == "" {
			return Frame{}, badFrame("media frame is missing payload")
		}
	}
	return frame, nil
}

// CallerIdentity extracts the caller's number from the start frame's custom
// parameters, defaulting to "Unknown".
func (p *StartPayload) CallerIdentity() string {
	if p == nil {
		return "Unknown"
	}
	for _, key := range []string{"callerNumber", "caller", "from"} {
		if v := strings.TrimSpace(p.CustomParameters[key]); v != "" {
			return v
		}
	}
	return "Unknown"
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

type outboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Mark      MarkPayload `json:"mark"`
}

// EncodeMedia builds an outbound audio frame tagged with the stream id. The
// payload is relayed verbatim (already base64).
func EncodeMedia(streamSid, payloadB64 string) ([]byte, error) {
	return json.Marshal(outboundMedia{Event: EventMedia, StreamSid: streamSid, Media: MediaPayload{Payload: payloadB64}})
}

// EncodeClear builds the buffered-audio flush frame sent on barge-in.
func EncodeClear(streamSid string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: EventClear, StreamSid: streamSid})
}

func EncodeMark(streamSid, name string) ([]byte, error) {
	return json.Marshal(outboundMark{Event: EventMark, StreamSid: streamSid, Mark: MarkPayload{Name: name}})
}

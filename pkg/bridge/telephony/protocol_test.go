package telephony

import (
	"encoding/json"
	"testing"
)

func TestDecodeFrameStart(t *testing.T) {
	t.Parallel()

	raw := `{"event":"start","streamSid":"MZ123","start":{"streamSid":"MZ123","callSid":"CA9","customParameters":{"callerNumber":"+15550100"}}}`
	frame, err := DecodeFrame([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != EventStart {
		t.Fatalf("event = %q", frame.Event)
	}
	if frame.Start.StreamSid != "MZ123" {
		t.Fatalf("streamSid = %q", frame.Start.StreamSid)
	}
	if got := frame.Start.CallerIdentity(); got != "+15550100" {
		t.Fatalf("caller = %q", got)
	}
}

func TestDecodeFrameMedia(t *testing.T) {
	t.Parallel()

	frame, err := DecodeFrame([]byte(`{"event":"media","streamSid":"MZ1","media":{"payload":"AAAA"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Media.Payload != "AAAA" {
		t.Fatalf("payload = %q", frame.Media.Payload)
	}
}

func TestDecodeFrameMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json`,
		`{"streamSid":"MZ1"}`,
		`{"event":"start","start":{}}`,
		`{"event":"media","media":{}}`,
	}
	for _, raw := range cases {
		if _, err := DecodeFrame([]byte(raw)); err == nil {
			t.Fatalf("expected decode error for %s", raw)
		}
	}
}

func TestDecodeFrameUnknownEventPassesThrough(t *testing.T) {
	t.Parallel()

	frame, err := DecodeFrame([]byte(`{"event":"dtmf"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != "dtmf" {
		t.Fatalf("event = %q", frame.Event)
	}
}

func TestCallerIdentityDefaultsUnknown(t *testing.T) {
	t.Parallel()

	p := &StartPayload{StreamSid: "MZ1"}
	if got := p.CallerIdentity(); got != "Unknown" {
		t.Fatalf("caller = %q", got)
	}
}

func TestEncodeMediaAndClear(t *testing.T) {
	t.Parallel()

	data, err := EncodeMedia("MZ1", "b64audio")
	if err != nil {
		t.Fatalf("encode media: %v", err)
	}
	var media map[string]any
	if err := json.Unmarshal(data, &media); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if media["event"] != "media" || media["streamSid"] != "MZ1" {
		t.Fatalf("frame = %v", media)
	}
	if media["media"].(map[string]any)["payload"] != "b64audio" {
		t.Fatalf("payload missing: %v", media)
	}

	data, err = EncodeClear("MZ1")
	if err != nil {
		t.Fatalf("encode clear: %v", err)
	}
	var clear map[string]any
	if err := json.Unmarshal(data, &clear); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if clear["event"] != "clear" || clear["streamSid"] != "MZ1" {
		t.Fatalf("frame = %v", clear)
	}
}

package handlers

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sonara-ai/sonara/pkg/gateway/config"
	"github.com/sonara-ai/sonara/pkg/gateway/lifecycle"
)

// VoiceHandler answers the telephony provider's inbound-call webhook with a
// connect document pointing the media stream at /media-stream. The caller's
// number rides along as a custom stream parameter so the session can resolve
// the contact profile.
type VoiceHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

type streamParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type connectStream struct {
	URL        string            `xml:"url,attr"`
	Parameters []streamParameter `xml:"Parameter"`
}

type connectVerb struct {
	Stream connectStream `xml:"Stream"`
}

type voiceResponse struct {
	XMLName xml.Name    `xml:"Response"`
	Connect connectVerb `xml:"Connect"`
}

func (h VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	caller := strings.TrimSpace(r.FormValue("From"))
	callSid := strings.TrimSpace(r.FormValue("CallSid"))

	params := []streamParameter{}
	if caller != "" {
		params = append(params, streamParameter{Name: "callerNumber", Value: caller})
	}
	if callSid != "" {
		params = append(params, streamParameter{Name: "callSid", Value: callSid})
	}

	doc := voiceResponse{
		Connect: connectVerb{Stream: connectStream{
			URL:        h.streamURL(r),
			Parameters: params,
		}},
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to build voice response", "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.Logger != nil {
		h.Logger.Info("inbound call", "caller", caller, "call_sid", callSid)
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func (h VoiceHandler) streamURL(r *http.Request) string {
	host := strings.TrimSpace(h.Config.PublicHost)
	if host == "" {
		host = r.Host
	}
	return "wss://" + host + "/media-stream"
}

// Package config loads the gateway configuration from the environment.
// Every knob has a default except the speech-engine API key, which is fatal
// to omit at startup rather than at the first call.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used when building the
	// media-stream URL handed back to the telephony provider.
	PublicHost string

	// Speech engine.
	OpenAIAPIKey string
	SpeechURL    string
	SpeechModel  string
	Voice        string
	Greeting     string
	EmbedModel   string

	// Outbound integrations. Empty base URL disables that integration.
	CRMBaseURL       string
	CRMAPIKey        string
	TranslateBaseURL string
	TranslateAPIKey  string
	WebhookURL       string
	WebhookAttempts  int

	// Knowledge base.
	KBIndexPath    string
	KBTopK         int
	KBMinScore     float64
	KBChunkSize    int
	KBChunkOverlap int
	KBMaxPages     int
	KBAllowedHosts []string

	GapLogPath string

	// Session tuning.
	ClearCooldown     time.Duration
	LookupTimeout     time.Duration
	OutboundQueueSize int

	// WebSocket limits.
	WSMaxFrameBytes int64
	WSWriteTimeout  time.Duration
	WSPingInterval  time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("SONARA_ADDR", ":8080"),
		PublicHost:          envOr("SONARA_PUBLIC_HOST", ""),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		SpeechURL:           envOr("SONARA_SPEECH_URL", "wss://api.openai.com/v1/realtime"),
		SpeechModel:         envOr("SONARA_SPEECH_MODEL", "gpt-4o-realtime-preview"),
		Voice:               envOr("SONARA_VOICE", "alloy"),
		Greeting:            envOr("SONARA_GREETING", "Greet the caller warmly and ask how you can help."),
		EmbedModel:          envOr("SONARA_EMBED_MODEL", "text-embedding-3-small"),
		CRMBaseURL:          envOr("SONARA_CRM_BASE_URL", ""),
		CRMAPIKey:           envOr("SONARA_CRM_API_KEY", ""),
		TranslateBaseURL:    envOr("SONARA_TRANSLATE_BASE_URL", ""),
		TranslateAPIKey:     envOr("SONARA_TRANSLATE_API_KEY", ""),
		WebhookURL:          envOr("SONARA_WEBHOOK_URL", ""),
		WebhookAttempts:     envIntOr("SONARA_WEBHOOK_ATTEMPTS", 3),
		KBIndexPath:         envOr("SONARA_KB_INDEX_PATH", "data/kb_index.json"),
		KBTopK:              envIntOr("SONARA_KB_TOP_K", 4),
		KBMinScore:          envFloat64Or("SONARA_KB_MIN_SCORE", 0.25),
		KBChunkSize:         envIntOr("SONARA_KB_CHUNK_SIZE", 1200),
		KBChunkOverlap:      envIntOr("SONARA_KB_CHUNK_OVERLAP", 200),
		KBMaxPages:          envIntOr("SONARA_KB_MAX_PAGES", 200),
		KBAllowedHosts:      splitCSV(os.Getenv("SONARA_KB_ALLOWED_HOSTS")),
		GapLogPath:          envOr("SONARA_GAP_LOG_PATH", "data/knowledge_gaps.jsonl"),
		ClearCooldown:       envDurationOr("SONARA_CLEAR_COOLDOWN", 250*time.Millisecond),
		LookupTimeout:       envDurationOr("SONARA_LOOKUP_TIMEOUT", 8*time.Second),
		OutboundQueueSize:   envIntOr("SONARA_OUTBOUND_QUEUE_SIZE", 128),
		WSMaxFrameBytes:     envInt64Or("SONARA_WS_MAX_FRAME_BYTES", 64<<10),
		WSWriteTimeout:      envDurationOr("SONARA_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:      envDurationOr("SONARA_WS_PING_INTERVAL", 20*time.Second),
		ReadHeaderTimeout:   envDurationOr("SONARA_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("SONARA_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY must be set")
	}
	if cfg.WebhookAttempts <= 0 {
		return Config{}, fmt.Errorf("SONARA_WEBHOOK_ATTEMPTS must be > 0")
	}
	if cfg.KBTopK <= 0 {
		return Config{}, fmt.Errorf("SONARA_KB_TOP_K must be > 0")
	}
	if cfg.KBMinScore < 0 || cfg.KBMinScore > 1 {
		return Config{}, fmt.Errorf("SONARA_KB_MIN_SCORE must be within [0, 1]")
	}
	if cfg.KBChunkSize <= 0 {
		return Config{}, fmt.Errorf("SONARA_KB_CHUNK_SIZE must be > 0")
	}
	if cfg.KBChunkOverlap < 0 || cfg.KBChunkOverlap >= cfg.KBChunkSize {
		return Config{}, fmt.Errorf("SONARA_KB_CHUNK_OVERLAP must be >= 0 and < SONARA_KB_CHUNK_SIZE")
	}
	if cfg.KBMaxPages <= 0 {
		return Config{}, fmt.Errorf("SONARA_KB_MAX_PAGES must be > 0")
	}
	if strings.TrimSpace(cfg.KBIndexPath) == "" {
		return Config{}, fmt.Errorf("SONARA_KB_INDEX_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.GapLogPath) == "" {
		return Config{}, fmt.Errorf("SONARA_GAP_LOG_PATH must not be empty")
	}
	if cfg.ClearCooldown <= 0 {
		return Config{}, fmt.Errorf("SONARA_CLEAR_COOLDOWN must be > 0")
	}
	if cfg.LookupTimeout <= 0 {
		return Config{}, fmt.Errorf("SONARA_LOOKUP_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("SONARA_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.WSMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("SONARA_WS_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("SONARA_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("SONARA_WS_PING_INTERVAL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SONARA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SONARA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

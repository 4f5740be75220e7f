// Package translate wraps the outbound translation call used to localize
// free-text tool arguments before they are forwarded externally. Translation
// is strictly best-effort: any failure falls back to the original text.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Translator interface {
	Translate(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

type translateRequest struct {
	TargetLanguage string            `json:"target_language"`
	Fields         map[string]string `json:"fields"`
}

type translateResponse struct {
	Fields map[string]string `json:"fields"`
}

func (c *Client) Translate(ctx context.Context, fields map[string]string, targetLanguage string) (map[string]string, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("translation is not configured")
	}
	body, err := json.Marshal(translateRequest{TargetLanguage: targetLanguage, Fields: fields})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("translation returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	if decoded.Fields == nil {
		return nil, fmt.Errorf("translation response has no fields")
	}
	return decoded.Fields, nil
}

// BestEffort translates fields and merges the results over the originals.
// Missing or failed translations keep the untranslated value; a translation
// failure never blocks the caller's primary action.
func BestEffort(ctx context.Context, translator Translator, fields map[string]string, targetLanguage string, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[string]string, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	if translator == nil || len(fields) == 0 || strings.TrimSpace(targetLanguage) == "" {
		return out
	}
	translated, err := translator.Translate(ctx, fields, targetLanguage)
	if err != nil {
		logger.Warn("translation failed, forwarding original text", "error", err)
		return out
	}
	for key := range fields {
		if v, ok := translated[key]; ok && strings.TrimSpace(v) != "" {
			out[key] = v
		}
	}
	return out
}

// Package webhook delivers tool-produced events to the configured external
// endpoint. Every payload passes through the redaction engine before leaving
// the process; transient delivery failures retry with backoff.
package webhook

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

	"github.com/sethvargo/go-retry"

	"github.com/sonara-ai/sonara/pkg/redact"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 300 * time.Millisecond
)

type Sender interface {
	Deliver(ctx context.Context, event string, payload map[string]any) error
}

type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	attempts   uint64
}

type Option func(*Client)

func WithAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = uint64(attempts)
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(url string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		attempts:   defaultAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.url != ""
}

type envelope struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Deliver sanitizes payload, logs any redacted paths once, and posts the
// envelope. 5xx responses and network errors retry with fibonacci backoff;
// 4xx responses fail immediately.
func (c *Client) Deliver(ctx context.Context, event string, payload map[string]any) error {
	if !c.Configured() {
		return fmt.Errorf("webhook endpoint is not configured")
	}

	cleaned, redactedPaths := redact.Sanitize(payload)
	if len(redactedPaths) > 0 {
		c.logger.Warn("redacted sensitive fields before webhook delivery",
			"event", event, "paths", redactedPaths)
	}
	cleanedMap, _ := cleaned.(map[string]any)

	body, err := json.Marshal(envelope{Event: event, Timestamp: time.Now().UTC(), Payload: cleanedMap})
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(c.attempts-1, retry.NewFibonacci(defaultBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

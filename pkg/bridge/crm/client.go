// Package crm wraps the external contact-lookup call. The lookup runs before
// a call's audio is bridged and is raced against a hard timeout: the call
// proceeds with an unresolved profile rather than waiting on a slow CRM.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultLookupTimeout = 8 * time.Second

// Profile is the result of one contact lookup. Immutable once resolved.
type Profile struct {
	Found       bool     `json:"found"`
	Name        string   `json:"name,omitempty"`
	Company     string   `json:"company,omitempty"`
	Email       string   `json:"email,omitempty"`
	LoadNumbers []string `json:"load_numbers,omitempty"`
}

// Lookup is what the session bridge depends on; the HTTP client below is the
// production implementation.
type Lookup interface {
	LookupContact(ctx context.Context, phone string) (Profile, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

func (c *Client) LookupContact(ctx context.Context, phone string) (Profile, error) {
	if !c.Configured() {
		return Profile{}, fmt.Errorf("contact lookup is not configured")
	}
	endpoint := c.baseURL + "/contacts/lookup?phone=" + url.QueryEscape(phone)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Profile{Found: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Profile{}, fmt.Errorf("contact lookup returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode contact lookup response: %w", err)
	}
	return profile, nil
}

// ResolveWithTimeout races the lookup against timeout and never fails: a
// timeout or lookup error resolves to an unfound profile. The in-flight
// request is canceled when the timeout fires.
func ResolveWithTimeout(ctx context.Context, lookup Lookup, phone string, timeout time.Duration, logger *slog.Logger) Profile {
	if lookup == nil {
		return Profile{}
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	profile, err := lookup.LookupContact(lookupCtx, phone)
	if err != nil {
		logger.Warn("contact lookup failed, continuing without profile", "error", err)
		return Profile{Found: false}
	}
	return profile
}

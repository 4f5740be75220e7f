package kb

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Query parameters stripped during URL normalization. These vary per click
// and would defeat visited-once deduplication.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
	"ref":          {},
}

// File extensions that are never crawled as documents.
var skippedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".css": {}, ".js": {}, ".mjs": {}, ".json": {}, ".xml": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".mp3": {}, ".mp4": {},
	".wav": {}, ".avi": {}, ".mov": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".eot": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {},
	".pptx": {}, ".exe": {}, ".dmg": {}, ".apk": {},
}

// NormalizeURL canonicalizes raw for visited-once deduplication: lowercased
// host with any "www." prefix stripped, fragment removed, tracking query
// parameters dropped, and the trailing slash trimmed from non-root paths.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("url host is required")
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""

	if u.RawQuery != "" {
		query := u.Query()
		for param := range query {
			if _, tracking := trackingParams[strings.ToLower(param)]; tracking {
				query.Del(param)
			}
		}
		u.RawQuery = query.Encode()
	}

	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// CanonicalHost returns the host used for allowed-host checks. The port is
// kept so that two services on the same address never count as one host.
func CanonicalHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("url host is required")
	}
	if port := u.Port(); port != "" {
		host = host + ":" + port
	}
	return host, nil
}

func hasSkippedExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	_, skip := skippedExtensions[ext]
	return skip
}

package kb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	DefaultMaxPages     = 50
	DefaultMinTextChars = 200
	maxPageBytes        = 2 << 20
)

type CrawlLimits struct {
	MaxPages     int
	MinTextChars int
	AllowedHosts []string
}

// Page is a fetched document that met the minimum-text threshold.
type Page struct {
	URL   string
	Title string
	Text  string
}

type Crawler struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

func NewCrawler(logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
		userAgent:  "sonara-ingest/1.0",
	}
}

// Crawl walks pages breadth-first from seeds. A URL is fetched at most once
// after normalization, only hosts in the allowed set are followed, and a page
// whose visible text falls below the threshold is discarded while its links
// are still followed.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, limits CrawlLimits) ([]Page, error) {
	maxPages := limits.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	minText := limits.MinTextChars
	if minText <= 0 {
		minText = DefaultMinTextChars
	}

	allowed := make(map[string]struct{})
	for _, host := range limits.AllowedHosts {
		host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
		if host != "" {
			allowed[host] = struct{}{}
		}
	}

	var queue []string
	visited := make(map[string]struct{})
	for _, seed := range seeds {
		normalized, err := NormalizeURL(seed)
		if err != nil {
			return nil, fmt.Errorf("invalid seed url %q: %w", seed, err)
		}
		host, err := CanonicalHost(normalized)
		if err != nil {
			return nil, err
		}
		allowed[host] = struct{}{}
		if _, seen := visited[normalized]; seen {
			continue
		}
		visited[normalized] = struct{}{}
		queue = append(queue, normalized)
	}

	var pages []Page
	fetched := 0
	for len(queue) > 0 && fetched < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		target := queue[0]
		queue = queue[1:]
		fetched++

		title, text, links, err := c.fetch(ctx, target)
		if err != nil {
			c.logger.Warn("crawl fetch failed", "url", target, "error", err)
			continue
		}

		if len(text) >= minText {
			pages = append(pages, Page{URL: target, Title: title, Text: text})
		} else {
			c.logger.Debug("crawl page below text threshold", "url", target, "chars", len(text))
		}

		for _, link := range links {
			normalized, err := NormalizeURL(link)
			if err != nil {
				continue
			}
			host, err := CanonicalHost(normalized)
			if err != nil {
				continue
			}
			if _, ok := allowed[host]; !ok {
				continue
			}
			if hasSkippedExtension(normalized) {
				continue
			}
			if _, seen := visited[normalized]; seen {
				continue
			}
			visited[normalized] = struct{}{}
			queue = append(queue, normalized)
		}
	}
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, target string) (title, text string, links []string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") {
		return "", "", nil, fmt.Errorf("unsupported content type %q", contentType)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(target)
	if err != nil {
		return "", "", nil, err
	}
	title, text, links = extractDocument(doc, base)
	return title, text, links, nil
}

// extractDocument walks the parsed tree once, collecting the title, the
// visible text (script/style/noscript subtrees excluded), and resolved
// anchor targets.
func extractDocument(doc *html.Node, base *url.URL) (string, string, []string) {
	var title string
	var text strings.Builder
	var links []string

	var visit func(n *html.Node, skip bool)
	visit = func(n *html.Node, skip bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "iframe":
				skip = true
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key != "href" {
						continue
					}
					href := strings.TrimSpace(attr.Val)
					if href == "" || strings.HasPrefix(href, "#") ||
						strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
						strings.HasPrefix(href, "javascript:") {
						continue
					}
					if resolved, err := base.Parse(href); err == nil {
						links = append(links, resolved.String())
					}
				}
			}
		case html.TextNode:
			if !skip {
				trimmed := strings.TrimSpace(n.Data)
				if trimmed != "" {
					if text.Len() > 0 {
						text.WriteByte(' ')
					}
					text.WriteString(trimmed)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child, skip)
		}
	}
	visit(doc, false)
	return title, text.String(), links
}

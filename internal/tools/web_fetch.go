package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	fetchTimeout     = 30 * time.Second
	fetchMaxBodySize = 5 * 1024 * 1024 // 5MB
	fetchMaxLines    = 2000
	fetchUserAgent   = "agentcore/1.0 (AI coding assistant)"
	fetchCacheTTL    = 15 * time.Minute
	fetchCacheMax    = 100
)

type webFetchArgs struct {
	URL    string `json:"url" jsonschema:"The URL to fetch (http or https)"`
	Prompt string `json:"prompt" jsonschema:"What information to extract from the page"`
}

type fetchCacheEntry struct {
	content   string
	fetchedAt time.Time
}

// fetcher holds one session's HTTP client and page cache.
type fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]fetchCacheEntry
	now   func() time.Time
}

func (f *fetcher) cached(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[key]
	if !ok {
		return "", false
	}
	if f.now().Sub(e.fetchedAt) > fetchCacheTTL {
		delete(f.cache, key)
		return "", false
	}
	return e.content, true
}

func (f *fetcher) store(key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if len(f.cache) >= fetchCacheMax {
		for k, e := range f.cache {
			if now.Sub(e.fetchedAt) > fetchCacheTTL {
				delete(f.cache, k)
			}
		}
	}
	f.cache[key] = fetchCacheEntry{content: content, fetchedAt: now}
}

// WebFetch fetches a page and converts HTML to markdown. Pages are cached
// for 15 minutes; a redirect to another host is reported instead of
// followed.
func WebFetch() Registration {
	return Define(Definition[webFetchArgs]{
		Name: "web_fetch",
		Description: "Fetch a web page and convert it to markdown for reading. " +
			"Always provide a prompt describing what information you need from the page. " +
			"If the page redirects to a different domain, make a new request with the redirect URL. " +
			"Results are cached for 15 minutes.",
		Category: CategoryWeb,
		ReadOnly: true,
		New: func(d Deps) (Handler[webFetchArgs], error) {
			client := d.HTTPClient
			if client == nil {
				client = &http.Client{Timeout: fetchTimeout}
			}
			f := &fetcher{client: client, cache: make(map[string]fetchCacheEntry), now: time.Now}
			return f.fetch, nil
		},
	})
}

func (f *fetcher) fetch(ctx context.Context, p webFetchArgs) (ToolResult, error) {
	if p.URL == "" {
		return ToolResult{}, fmt.Errorf("url is required")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("Invalid URL: %v", err), IsError: true}, nil
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	if u.Scheme != "https" {
		return ToolResult{Content: "Only http and https URLs are supported", IsError: true}, nil
	}
	fetchURL := u.String()

	header := fmt.Sprintf("URL: %s\nPrompt: %s\n", fetchURL, p.Prompt)
	if content, ok := f.cached(fetchURL); ok {
		return ToolResult{Content: header + "(cached)\n\n" + content}, nil
	}

	originalHost := u.Host
	client := *f.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		if req.URL.Host == originalHost {
			return nil
		}
		return &crossDomainRedirect{URL: req.URL.String()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("Failed to create request: %v", err), IsError: true}, nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,text/plain,text/markdown,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		var cdr *crossDomainRedirect
		if errors.As(err, &cdr) {
			return ToolResult{
				Content: fmt.Sprintf("Redirect to different domain detected.\nThe URL redirects to: %s\nMake a new web_fetch request with this URL.", cdr.URL),
			}, nil
		}
		if ctx.Err() != nil {
			return ToolResult{}, fmt.Errorf("cancelled")
		}
		return ToolResult{Content: fmt.Sprintf("HTTP request failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ToolResult{
			Content: fmt.Sprintf("HTTP %d %s for %s", resp.StatusCode, http.StatusText(resp.StatusCode), fetchURL),
			IsError: true,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize+1))
	if err != nil {
		return ToolResult{Content: fmt.Sprintf("Failed to read response: %v", err), IsError: true}, nil
	}
	tooBig := len(body) > fetchMaxBodySize
	if tooBig {
		body = body[:fetchMaxBodySize]
	}

	var content string
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		md, err := htmltomarkdown.ConvertString(string(body))
		if err != nil {
			content = string(body)
		} else {
			content = md
		}
	case strings.Contains(contentType, "text/markdown"), strings.Contains(contentType, "text/plain"):
		content = string(body)
	default:
		if len(body) == 0 || !isLikelyText(body) {
			return ToolResult{Content: fmt.Sprintf("Unsupported content type: %s", contentType), IsError: true}, nil
		}
		content = string(body)
	}

	content, cut := truncateLines(content, fetchMaxLines)
	f.store(fetchURL, content)

	out := header + "\n" + content
	if tooBig {
		out += "\n\n[Content truncated due to size limit]"
	}
	return ToolResult{Content: out, Truncated: tooBig || cut}, nil
}

// truncateLines keeps only the first maxLines lines.
func truncateLines(s string, maxLines int) (string, bool) {
	idx := 0
	for i := 0; i < maxLines; i++ {
		next := strings.IndexByte(s[idx:], '\n')
		if next == -1 {
			return s, false
		}
		idx += next + 1
	}
	if idx == len(s) {
		return s, false
	}
	return s[:idx] + fmt.Sprintf("\n[Content truncated to first %d lines]", maxLines), true
}

// crossDomainRedirect stops the client at a redirect to another host.
type crossDomainRedirect struct {
	URL string
}

func (e *crossDomainRedirect) Error() string {
	return fmt.Sprintf("cross-domain redirect to %s", e.URL)
}

// isLikelyText reports whether the first 512 bytes contain no NUL.
func isLikelyText(data []byte) bool {
	check := data
	if len(check) > 512 {
		check = check[:512]
	}
	for _, b := range check {
		if b == 0 {
			return false
		}
	}
	return true
}

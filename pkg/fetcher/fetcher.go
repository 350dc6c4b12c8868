// Package fetcher downloads listing pages and PDFs with retries and a polite
// delay between requests.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/lda-transparency/pkg/caching"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
)

// Options control request behaviour.
type Options struct {
	UserAgent  string
	Timeout    time.Duration // per request
	MaxRetries int           // attempts after the first
	Delay      time.Duration // minimum gap between requests
	Backoff    time.Duration // first retry wait, doubled per attempt
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("failed to fetch %s, status code: %d", e.URL, e.StatusCode)
}

// Temporary reports whether retrying may help.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Fetcher struct {
	client *http.Client
	opts   Options
	cache  *caching.Cache

	mu   sync.Mutex
	last time.Time
}

// NewFetcher builds a fetcher. cache may be nil.
func NewFetcher(opts Options, cache *caching.Cache) *Fetcher {
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Fetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		cache:  cache,
	}
}

// GetHtml fetches a listing page, using the cache when it is fresh.
func (f *Fetcher) GetHtml(ctx context.Context, rawURL string) (*goquery.Document, error) {
	bodyBytes, cached := []byte(nil), false
	if f.cache != nil {
		bodyBytes, cached = f.cache.Get(rawURL)
	}
	if !cached {
		var err error
		bodyBytes, err = f.GetHtmlBytes(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			if err := f.cache.Set(rawURL, bodyBytes); err != nil {
				slog.Warn("failed to cache listing page", "url", rawURL, "error", err)
			}
		}
	} else {
		slog.Debug("listing page served from cache", "url", rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// GetHtmlBytes fetches a URL and returns its body.
func (f *Fetcher) GetHtmlBytes(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := f.do(ctx, rawURL, func(r io.Reader) error {
		var err error
		body, err = io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		return nil
	})
	return body, err
}

// Download streams a document into store.
func (f *Fetcher) Download(ctx context.Context, rawURL string, store *storage.Storage) (*storage.Saved, error) {
	var saved *storage.Saved
	err := f.do(ctx, rawURL, func(r io.Reader) error {
		var err error
		saved, err = store.Save(rawURL, r)
		return err
	})
	return saved, err
}

// do performs GET with retries. consume is called once per successful
// response; its error is retried like a network error.
func (f *Fetcher) do(ctx context.Context, rawURL string, consume func(io.Reader) error) error {
	var lastErr error
	wait := f.opts.Backoff
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying request", "url", rawURL, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			wait *= 2
		}
		if err := f.throttle(ctx); err != nil {
			return err
		}

		lastErr = f.once(ctx, rawURL, consume)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var httpErr *HTTPError
		if errors.As(lastErr, &httpErr) && !httpErr.Temporary() {
			return lastErr
		}
	}
	return lastErr
}

func (f *Fetcher) once(ctx context.Context, rawURL string, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return consume(resp.Body)
}

// throttle waits until Delay has passed since the previous request.
func (f *Fetcher) throttle(ctx context.Context) error {
	if f.opts.Delay <= 0 {
		return nil
	}
	f.mu.Lock()
	next := f.last.Add(f.opts.Delay)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	f.last = next
	f.mu.Unlock()

	select {
	case <-time.After(time.Until(next)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Link is an anchor found on a listing page.
type Link struct {
	URL   string
	Title string
}

// ExtractLinks returns the absolute targets of every element matching
// selector, in document order and without duplicates.
func ExtractLinks(doc *goquery.Document, selector string, base *url.URL) []Link {
	var links []Link
	seen := make(map[string]bool)
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		abs.Fragment = ""
		target := abs.String()
		if seen[target] {
			return
		}
		seen[target] = true

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title, _ = s.Attr("title")
		}
		links = append(links, Link{URL: target, Title: title})
	})
	return links
}

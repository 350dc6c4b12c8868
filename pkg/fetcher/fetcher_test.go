package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/lda-transparency/pkg/caching"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

func testOptions() Options {
	return Options{UserAgent: "lda-test/1.0", Timeout: 5 * time.Second, MaxRetries: 2, Backoff: time.Millisecond}
}

func TestGetHtmlBytes_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "lda-test/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	body, err := NewFetcher(testOptions(), nil).GetHtmlBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetHtmlBytes() error = %v", err)
	}
	if string(body) != "ok" || calls.Load() != 3 {
		t.Errorf("body=%q calls=%d", body, calls.Load())
	}
}

func TestGetHtmlBytes_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher(testOptions(), nil).GetHtmlBytes(context.Background(), srv.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("error = %v, want HTTPError 404", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetHtml_UsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<html><body><a href="/a.pdf">A</a></body></html>`)
	}))
	defer srv.Close()

	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	f := NewFetcher(testOptions(), cache)
	for i := 0; i < 2; i++ {
		doc, err := f.GetHtml(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("GetHtml() error = %v", err)
		}
		if doc.Find("a").Length() != 1 {
			t.Errorf("parsed document has %d anchors", doc.Find("a").Length())
		}
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7 body")
	}))
	defer srv.Close()

	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	saved, err := NewFetcher(testOptions(), nil).Download(context.Background(), srv.URL+"/regs.pdf", store)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if saved.Size != int64(len("%PDF-1.7 body")) || !strings.HasSuffix(saved.Path, "-regs.pdf") {
		t.Errorf("Download() = %+v", saved)
	}
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store, _ := storage.New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(testOptions(), nil).Download(ctx, srv.URL+"/x.pdf", store)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Download() error = %v, want context.Canceled", err)
	}
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<table>
			<tr><td><a href="/uploads/regs-2019.pdf">  LDA Building
				Regulations 2019 </a></td></tr>
			<tr><td><a href="minutes/meeting-12.PDF" title="Meeting 12"></a></td></tr>
			<tr><td><a href="/uploads/regs-2019.pdf#page=2">duplicate</a></td></tr>
			<tr><td><a href="https://other.example/tender.pdf">Tender</a></td></tr>
			<tr><td><a href="/about">About</a></td></tr>
			<tr><td><a href="javascript:void(0)">js</a></td></tr>
		</table>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewDocumentFromReader() error = %v", err)
	}
	base, _ := url.Parse("https://lda.gop.pk/page/downloads/")

	got := ExtractLinks(doc, "a", base)
	want := []Link{
		{URL: "https://lda.gop.pk/uploads/regs-2019.pdf", Title: "LDA Building Regulations 2019"},
		{URL: "https://lda.gop.pk/page/downloads/minutes/meeting-12.PDF", Title: "Meeting 12"},
		{URL: "https://other.example/tender.pdf", Title: "Tender"},
		{URL: "https://lda.gop.pk/about", Title: "About"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractLinks() mismatch (-want +got):\n%s", diff)
	}

	pdfOnly := ExtractLinks(doc, `a[href$=".pdf"], a[href$=".PDF"]`, base)
	if len(pdfOnly) != 3 {
		t.Errorf("pdf selector found %d links, want 3: %+v", len(pdfOnly), pdfOnly)
	}
}

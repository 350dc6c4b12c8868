package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/fetcher"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tenders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li><a href="/files/tender-1.pdf">Tender 1</a></li>
			<li><a href="/files/missing.pdf">Tender 2</a></li>
			<li><a href="/files/tender-3.pdf">Tender 3</a></li>
			<li><a href="/contact">Contact</a></li>
		</ul></body></html>`)
	})
	mux.HandleFunc("/files/tender-1.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 tender one")
	})
	mux.HandleFunc("/files/tender-3.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 tender three")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCollector(t *testing.T) (*Collector, *Processor) {
	t.Helper()
	database := setupDB(t)
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	f := fetcher.NewFetcher(fetcher.Options{Timeout: 5 * time.Second, Backoff: time.Millisecond}, nil)
	proc := newProcessor(database, testTaxonomy(t), fakeText{}, nil, nil, time.Minute)
	return NewCollector(database, f, store, proc), proc
}

func TestCollect(t *testing.T) {
	srv := listingServer(t)
	collector, _ := newCollector(t)
	ctx := context.Background()

	req := ScrapeRequest{URL: srv.URL + "/tenders", Selector: `a[href$=".pdf"]`, Type: models.TypeTender}
	pending, failures, err := collector.Collect(ctx, req)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Title != "Tender 1" || pending[0].Type != models.TypeTender || pending[0].ContentHash == "" {
		t.Errorf("pending[0] = %+v", pending[0])
	}
	if _, err := os.Stat(pending[0].Path); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}

	if len(failures) != 1 || failures[0].ErrorType != models.ReasonDownload {
		t.Fatalf("failures = %+v", failures)
	}
	failed, err := collector.db.GetDocument(ctx, failures[0].DocumentID)
	if err != nil {
		t.Fatalf("GetDocument(failed) error = %v", err)
	}
	if failed.Status != models.StatusFailed || failed.FailureReason != models.ReasonDownload {
		t.Errorf("failed download row = %+v", failed)
	}

	// A second scrape reuses files on disk and registers nothing new.
	pendingAgain, _, err := collector.Collect(ctx, req)
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if len(pendingAgain) != 2 || pendingAgain[0].ID != pending[0].ID {
		t.Errorf("second Collect() pending = %+v", pendingAgain)
	}
}

func TestCollect_Limit(t *testing.T) {
	srv := listingServer(t)
	collector, _ := newCollector(t)

	pending, failures, err := collector.Collect(context.Background(), ScrapeRequest{
		URL: srv.URL + "/tenders", Selector: "a", Type: models.TypeTender, Limit: 1,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pending)+len(failures) != 1 {
		t.Errorf("processed %d links, want 1", len(pending)+len(failures))
	}
}

func TestCollect_ListingUnavailable(t *testing.T) {
	srv := listingServer(t)
	collector, _ := newCollector(t)
	_, _, err := collector.Collect(context.Background(), ScrapeRequest{URL: srv.URL + "/nope", Selector: "a"})
	if err == nil || !strings.Contains(err.Error(), "listing page") {
		t.Errorf("Collect() error = %v, want listing page error", err)
	}
}

func TestRegisterFile(t *testing.T) {
	database := setupDB(t)
	path := filepath.Join(t.TempDir(), "Scheme Approval.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc, err := RegisterFile(context.Background(), database, path, models.TypeHousingScheme)
	if err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}
	if !strings.HasPrefix(doc.URL, "file://") || doc.Path != path || doc.Type != models.TypeHousingScheme {
		t.Errorf("RegisterFile() = %+v", doc)
	}
	if doc.FileSize != 8 || doc.Status != models.StatusUnprocessed {
		t.Errorf("RegisterFile() = %+v", doc)
	}

	again, err := RegisterFile(context.Background(), database, path, models.TypeHousingScheme)
	if err != nil || again.ID != doc.ID {
		t.Errorf("second RegisterFile() = %+v, %v", again, err)
	}

	if _, err := RegisterFile(context.Background(), database, filepath.Join(t.TempDir(), "none.pdf"), models.TypeTender); err == nil {
		t.Error("RegisterFile(missing) expected error")
	}
}

// meetingsServer serves a meetings table filtered by ?year= and paginated
// by ?page=: 2022 has two pages, 2023 one, and 2021 none.
func meetingsServer(t *testing.T, requests *[]string) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"2022/1": `<tr><td>1</td><td>20 December, 2022</td><td>2022</td><td><a href="/files/m-2022-12.pdf">Download</a></td></tr>
			<tr><td>2</td><td>8 November, 2022</td><td>2022</td><td><a href="/files/m-2022-11.pdf">Download</a></td></tr>`,
		"2022/2": `<tr><td>3</td><td>Pending</td><td>2022</td><td><a href="/files/m-2022-01.pdf">Download</a></td></tr>`,
		"2023/1": `<tr><td>1</td><td>14 March, 2023</td><td>2023</td><td><a href="/files/missing.pdf">Download</a></td></tr>`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/authority-meeting.php", func(w http.ResponseWriter, r *http.Request) {
		*requests = append(*requests, r.URL.RawQuery)
		year, page := r.URL.Query().Get("year"), r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		rows := pages[year+"/"+page]
		next := ""
		if year == "2022" && page == "1" {
			next = `<a href="?year=2022&page=2">Next</a>`
		}
		fmt.Fprintf(w, `<html><body><table>
			<tr><th>Sr. No</th><th>Meeting Date</th><th>Year</th><th>Download</th></tr>%s
			</table>%s</body></html>`, rows, next)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing.pdf") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "%%PDF-1.4 %s", r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollect_MeetingsTable(t *testing.T) {
	var requests []string
	srv := meetingsServer(t, &requests)
	collector, _ := newCollector(t)
	ctx := context.Background()

	pending, failures, err := collector.Collect(ctx, ScrapeRequest{
		URL: srv.URL + "/authority-meeting.php", FromYear: 2021, ToYear: 2023,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	wantRequests := []string{"year=2021", "year=2022", "page=2&year=2022", "year=2023"}
	if diff := cmp.Diff(wantRequests, requests); diff != "" {
		t.Errorf("listing requests mismatch (-want +got):\n%s", diff)
	}
	if len(pending) != 3 || len(failures) != 1 {
		t.Fatalf("pending = %d, failures = %d, want 3 and 1", len(pending), len(failures))
	}
	if pending[0].Type != models.TypeMeetingMinutes || pending[0].Title != "Authority Meeting - 20 December, 2022" {
		t.Errorf("pending[0] = %+v", pending[0])
	}

	meeting, err := collector.db.GetMeeting(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("GetMeeting() error = %v", err)
	}
	if meeting.SrNo != "1" || meeting.Year != 2022 || meeting.Date == nil ||
		meeting.Date.Format("2006-01-02") != "2022-12-20" || !strings.Contains(meeting.SourcePage, "year=2022") {
		t.Errorf("meeting = %+v", meeting)
	}

	undated, err := collector.db.GetMeeting(ctx, pending[2].ID)
	if err != nil {
		t.Fatalf("GetMeeting(undated) error = %v", err)
	}
	if undated.Date != nil || undated.DateText != "Pending" || undated.SrNo != "3" {
		t.Errorf("undated meeting = %+v", undated)
	}

	if _, err := collector.db.GetMeeting(ctx, failures[0].DocumentID); err == nil {
		t.Error("failed download has a meeting row")
	}
}

func TestCollect_MeetingsLimit(t *testing.T) {
	var requests []string
	srv := meetingsServer(t, &requests)
	collector, _ := newCollector(t)

	pending, failures, err := collector.Collect(context.Background(), ScrapeRequest{
		URL: srv.URL + "/authority-meeting.php", FromYear: 2022, ToYear: 2022, Limit: 1,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(pending) != 1 || len(failures) != 0 {
		t.Errorf("pending = %d, failures = %d, want 1 and 0", len(pending), len(failures))
	}
}

func TestCollect_MeetingsPaginationBounded(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			fmt.Fprint(w, "%PDF-1.4")
			return
		}
		calls++
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `<table><tr><td>%s</td><td>1 May, 2020</td><td>2020</td><td><a href="/m-%s.pdf">Download</a></td></tr></table>
			<a href="?page=99">Next</a>`, page, page)
	}))
	defer srv.Close()
	collector, _ := newCollector(t)

	pending, _, err := collector.Collect(context.Background(), ScrapeRequest{
		URL: srv.URL + "/meetings", FromYear: 2020, MaxPages: 3,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if calls != 3 || len(pending) != 3 {
		t.Errorf("calls = %d, pending = %d, want 3 and 3", calls, len(pending))
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/db"
	"github.com/dtnitsch/lda-transparency/pkg/fetcher"
	"github.com/dtnitsch/lda-transparency/pkg/metrics"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
)

// ScrapeRequest describes one listing page to harvest.
type ScrapeRequest struct {
	URL      string
	Selector string
	Type     models.DocumentType
	Limit    int
	// Refresh re-downloads files that are already on disk.
	Refresh bool

	// FromYear > 0 reads URL as a paginated meetings table, one listing per
	// year from FromYear to ToYear inclusive.
	FromYear int
	ToYear   int
	// MaxPages bounds the pages read per year; <= 0 uses DefaultMaxPages.
	MaxPages int
}

// DefaultMaxPages stops a year's pagination when the site never stops
// offering a next page.
const DefaultMaxPages = 50

// Collector downloads linked documents and registers them.
type Collector struct {
	db      *db.DB
	fetcher *fetcher.Fetcher
	store   *storage.Storage
	proc    *Processor
}

// NewCollector wires a collector. Results are logged through proc.
func NewCollector(database *db.DB, f *fetcher.Fetcher, store *storage.Storage, proc *Processor) *Collector {
	return &Collector{db: database, fetcher: f, store: store, proc: proc}
}

// Collect fetches the listing page, downloads every linked document and
// returns the documents that still need processing. Download failures are
// recorded as failed documents and returned as results.
func (c *Collector) Collect(ctx context.Context, req ScrapeRequest) ([]models.Document, []Result, error) {
	if req.FromYear > 0 {
		return c.collectMeetings(ctx, req)
	}
	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid listing URL: %w", err)
	}
	page, err := c.fetcher.GetHtml(ctx, req.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch listing page: %w", err)
	}

	links := fetcher.ExtractLinks(page, req.Selector, base)
	if req.Limit > 0 && len(links) > req.Limit {
		links = links[:req.Limit]
	}
	logger := c.proc.logger.With("listing", req.URL)
	logger.Info("Found document links", "links", len(links), "selector", req.Selector)

	var (
		pending  []models.Document
		failures []Result
	)
	for _, link := range links {
		doc, failure, err := c.collectLink(ctx, link, req)
		if err != nil {
			return pending, failures, err
		}
		if failure != nil {
			failures = append(failures, *failure)
		} else if doc != nil {
			pending = append(pending, *doc)
		}
	}
	return pending, failures, nil
}

// collectMeetings walks the meetings table year by year, following the
// pagination until a page has no rows or no next link. Each downloaded
// document gets its table row stored alongside it.
func (c *Collector) collectMeetings(ctx context.Context, req ScrapeRequest) ([]models.Document, []Result, error) {
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	toYear := req.ToYear
	if toYear < req.FromYear {
		toYear = req.FromYear
	}
	if req.Type == "" {
		req.Type = models.TypeMeetingMinutes
	}

	var (
		pending  []models.Document
		failures []Result
		seen     = make(map[string]bool)
		taken    int
	)
	for year := req.FromYear; year <= toYear; year++ {
		for pageNum := 1; pageNum <= maxPages; pageNum++ {
			pageURL, err := fetcher.MeetingPageURL(req.URL, year, pageNum)
			if err != nil {
				return pending, failures, fmt.Errorf("invalid listing URL: %w", err)
			}
			base, _ := url.Parse(pageURL)
			page, err := c.fetcher.GetHtml(ctx, pageURL)
			if err != nil {
				return pending, failures, fmt.Errorf("failed to fetch listing page: %w", err)
			}

			rows := fetcher.ParseMeetingTable(page, base)
			logger := c.proc.logger.With("listing", pageURL)
			logger.Info("Found meeting rows", "year", year, "page", pageNum, "rows", len(rows))
			if len(rows) == 0 {
				break
			}

			fresh := 0
			for _, row := range rows {
				if seen[row.URL] {
					continue
				}
				seen[row.URL] = true
				fresh++
				if req.Limit > 0 && taken >= req.Limit {
					return pending, failures, nil
				}
				taken++

				link := fetcher.Link{URL: row.URL, Title: "Authority Meeting - " + row.Date}
				doc, failure, err := c.collectLink(ctx, link, req)
				if err != nil {
					return pending, failures, err
				}
				if failure != nil {
					failures = append(failures, *failure)
					continue
				}
				c.storeMeeting(ctx, link.URL, row, year)
				if doc != nil {
					pending = append(pending, *doc)
				}
			}
			// A page repeating earlier rows means the filter was ignored.
			if fresh == 0 || !fetcher.HasNextPage(page, pageNum) {
				break
			}
		}
	}
	return pending, failures, nil
}

// collectLink downloads one link. It returns the document when it still
// needs processing, a failure result when the download failed, and an error
// only when ctx was cancelled.
func (c *Collector) collectLink(ctx context.Context, link fetcher.Link, req ScrapeRequest) (*models.Document, *Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	doc, err := c.download(ctx, link, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		failure := c.recordDownloadFailure(ctx, link, req.Type, err)
		return nil, &failure, nil
	}
	if doc.Status != models.StatusUnprocessed {
		c.proc.logger.Debug("Document unchanged, skipping", "url", link.URL, "status", doc.Status)
		return nil, nil, nil
	}
	return doc, nil, nil
}

// storeMeeting records the table row of a downloaded meeting document.
// Failures are logged; the document itself is already registered.
func (c *Collector) storeMeeting(ctx context.Context, docURL string, row fetcher.MeetingRow, year int) {
	logger := c.proc.logger.With("url", docURL)
	doc, err := c.db.GetDocumentByURL(ctx, docURL)
	if err != nil {
		logger.Error("Failed to store meeting details", "error", err)
		return
	}
	m := &models.Meeting{
		DocumentID: doc.ID,
		SrNo:       row.SrNo,
		DateText:   row.Date,
		Year:       year,
		SourcePage: row.SourcePage,
	}
	if y, err := strconv.Atoi(row.Year); err == nil && y > 0 {
		m.Year = y
	}
	if date, ok := models.ParseMeetingDate(row.Date); ok {
		m.Date = &date
	}
	if err := c.db.UpsertMeeting(ctx, m); err != nil {
		logger.Error("Failed to store meeting details", "error", err)
	}
}

func (c *Collector) download(ctx context.Context, link fetcher.Link, req ScrapeRequest) (*models.Document, error) {
	var (
		path string
		hash string
		size int64
	)
	if !req.Refresh && c.store.HasFile(link.URL) {
		path = c.store.PathFor(link.URL)
		var err error
		hash, size, err = storage.HashFile(path)
		if err != nil {
			return nil, err
		}
		metrics.Downloads.WithLabelValues("cached").Inc()
	} else {
		saved, err := c.fetcher.Download(ctx, link.URL, c.store)
		if err != nil {
			metrics.Downloads.WithLabelValues("error").Inc()
			return nil, err
		}
		path, hash, size = saved.Path, saved.Hash, saved.Size
		metrics.Downloads.WithLabelValues("downloaded").Inc()
	}

	id, _, err := c.db.UpsertDocument(ctx, &models.Document{
		URL:         link.URL,
		Title:       link.Title,
		Type:        req.Type,
		Path:        path,
		ContentHash: hash,
		FileSize:    size,
	})
	if err != nil {
		return nil, &StorageError{Op: "register document", Err: err}
	}
	return c.db.GetDocument(ctx, id)
}

func (c *Collector) recordDownloadFailure(ctx context.Context, link fetcher.Link, docType models.DocumentType, err error) Result {
	result := Result{URL: link.URL, Title: link.Title, Status: models.StatusFailed, Error: err, ErrorType: models.ReasonDownload}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		result.ErrorType = models.ReasonStorage
	}
	logger := c.proc.logger.With("url", link.URL)
	logger.Error("Download failed", "error", err)
	metrics.DocumentFailures.WithLabelValues(result.ErrorType).Inc()

	// A known document keeps its current version; only new URLs get a row
	// so the failure shows up in stats.
	if existing, getErr := c.db.GetDocumentByURL(ctx, link.URL); getErr == nil {
		result.DocumentID = existing.ID
		result.Status = existing.Status
		return result
	} else if !errors.Is(getErr, db.ErrNotFound) {
		logger.Error("Failed to record download failure", "error", getErr)
		return result
	}

	id, _, upErr := c.db.UpsertDocument(ctx, &models.Document{URL: link.URL, Title: link.Title, Type: docType})
	if upErr != nil {
		logger.Error("Failed to record download failure", "error", upErr)
		return result
	}
	result.DocumentID = id
	if markErr := c.db.MarkFailed(ctx, id, result.ErrorType, err.Error()); markErr != nil {
		logger.Error("Failed to record download failure", "error", markErr)
	}
	return result
}

// RegisterFile records a local PDF so it can be processed. The document URL
// is the file's absolute file:// URL.
func RegisterFile(ctx context.Context, database *db.DB, path string, docType models.DocumentType) (*models.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	hash, size, err := storage.HashFile(abs)
	if err != nil {
		return nil, err
	}
	fileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	id, _, err := database.UpsertDocument(ctx, &models.Document{
		URL:         fileURL,
		Title:       filepath.Base(abs),
		Type:        docType,
		Path:        abs,
		ContentHash: hash,
		FileSize:    size,
	})
	if err != nil {
		return nil, err
	}
	return database.GetDocument(ctx, id)
}

// ExitCode summarizes a run: 0 when every document was processed, 2 when
// none was, 1 otherwise.
func ExitCode(results []Result) int {
	if len(results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	switch ok {
	case len(results):
		return 0
	case 0:
		return 2
	}
	return 1
}

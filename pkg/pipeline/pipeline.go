// Package pipeline runs documents through extraction, language detection and
// tagging, and records the outcome of every document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/db"
	"github.com/dtnitsch/lda-transparency/pkg/detector"
	"github.com/dtnitsch/lda-transparency/pkg/extractor"
	"github.com/dtnitsch/lda-transparency/pkg/metrics"
	"github.com/dtnitsch/lda-transparency/pkg/tagger"
	"golang.org/x/sync/errgroup"
)

// ReasonCancelled marks documents interrupted by shutdown. It is never
// stored; the document keeps its previous state.
const ReasonCancelled = "cancelled"

type Options struct {
	Workers         int
	DocumentTimeout time.Duration // <= 0 uses DefaultDocumentTimeout
	ForceOCR        bool
}

const DefaultDocumentTimeout = 10 * time.Minute

// Result is the outcome for one document.
type Result struct {
	DocumentID int64
	URL        string
	Title      string
	Status     models.Status
	Mode       models.ExtractionMode
	Pages      int
	Confidence float64
	Tags       []models.TagAssignment
	Error      error
	ErrorType  string // reason code when Error is set
	Duration   time.Duration
}

// OK reports whether the document ended up processed.
func (r Result) OK() bool {
	return r.Error == nil && r.Status == models.StatusProcessed
}

type Processor struct {
	db       *db.DB
	router   *extractor.Router
	taxonomy *tagger.Taxonomy
	detector *detector.Detector
	opts     Options
	logger   *slog.Logger
}

// New builds a processor. det may be nil to skip language detection.
func New(database *db.DB, router *extractor.Router, taxonomy *tagger.Taxonomy, det *detector.Detector, opts Options, logger *slog.Logger) *Processor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = DefaultDocumentTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		db:       database,
		router:   router,
		taxonomy: taxonomy,
		detector: det,
		opts:     opts,
		logger:   logger,
	}
}

// ProcessAll processes docs with at most Workers in flight. One document's
// failure never stops the others. Results are in input order.
func (p *Processor) ProcessAll(ctx context.Context, docs []models.Document) []Result {
	p.logger.Info("Starting processing", "documents", len(docs), "workers", p.opts.Workers, "force_ocr", p.opts.ForceOCR)

	results := make([]Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range docs {
		g.Go(func() error {
			results[i] = p.Process(gctx, docs[i])
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("Processing finished", "documents", len(docs))
	return results
}

// Process extracts, tags and stores one document, then records its status.
func (p *Processor) Process(ctx context.Context, doc models.Document) Result {
	start := time.Now()
	result := Result{DocumentID: doc.ID, URL: doc.URL, Title: doc.Title, Status: doc.Status, Mode: doc.Mode}
	logger := p.logger.With("document_id", doc.ID, "url", doc.URL)

	if err := ctx.Err(); err != nil {
		result.Error, result.ErrorType = err, ReasonCancelled
		return result
	}

	dctx, cancel := context.WithTimeout(ctx, p.opts.DocumentTimeout)
	defer cancel()

	extraction, err := p.router.Extract(dctx, extractor.Request{
		Path:     doc.Path,
		Mode:     doc.Mode,
		ForceOCR: p.opts.ForceOCR,
	})
	if err != nil {
		return p.fail(ctx, logger, result, err, start)
	}
	result.Mode = extraction.Mode
	result.Pages = len(extraction.Pages)

	if p.detector != nil {
		p.detector.Annotate(extraction.Pages)
	}
	tags := p.taxonomy.TagPages(extraction.Pages)
	confidence := models.MeanConfidence(extraction.Pages)

	err = p.db.SaveExtraction(ctx, doc.ID, db.Extraction{
		Mode:          extraction.Mode,
		Pages:         extraction.Pages,
		Tags:          tags,
		TaxonomyHash:  p.taxonomy.Fingerprint(),
		PDFTitle:      extraction.Title,
		PDFAuthor:     extraction.Author,
		OCRConfidence: confidence,
	})
	if err != nil {
		return p.fail(ctx, logger, result, &StorageError{Op: "save extraction", Err: err}, start)
	}

	result.Status = models.StatusProcessed
	result.Tags = tags
	result.Confidence = confidence
	result.Duration = time.Since(start)

	metrics.DocumentsProcessed.WithLabelValues("processed", string(extraction.Mode)).Inc()
	metrics.ExtractionDuration.WithLabelValues(string(extraction.Mode)).Observe(result.Duration.Seconds())
	for _, page := range extraction.Pages {
		metrics.PagesExtracted.WithLabelValues(string(page.Source)).Inc()
	}
	for _, tag := range tags {
		metrics.TagAssignments.WithLabelValues(tag.Topic).Inc()
	}

	logger.Info("Document processed",
		"mode", extraction.Mode,
		"pages", result.Pages,
		"density", extraction.Density,
		"topics", len(tags),
		"duration", result.Duration)
	return result
}

// fail records err against the document. Backend problems leave it
// unprocessed, everything else marks it failed with a reason code.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, result Result, err error, start time.Time) Result {
	result.Error = err
	result.Duration = time.Since(start)

	if ctx.Err() != nil {
		result.ErrorType = ReasonCancelled
		logger.Warn("Document interrupted", "error", err)
		return result
	}

	reason, retryable := classify(err)
	result.ErrorType = reason

	var markErr error
	if retryable {
		result.Status = models.StatusUnprocessed
		markErr = p.db.MarkUnprocessed(ctx, result.DocumentID, reason, err.Error())
		logger.Warn("Document deferred", "reason", reason, "error", err)
	} else {
		result.Status = models.StatusFailed
		markErr = p.db.MarkFailed(ctx, result.DocumentID, reason, err.Error())
		logger.Error("Document failed", "reason", reason, "error", err)
	}
	if markErr != nil {
		logger.Error("Failed to record document status", "error", markErr)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(result.Status), string(result.Mode)).Inc()
	metrics.DocumentFailures.WithLabelValues(reason).Inc()
	return result
}

// classify maps an error to a reason code and says whether the document
// should be retried later.
func classify(err error) (string, bool) {
	var extractErr *extractor.ExtractionError
	switch {
	case extractor.IsRetryable(err):
		return models.ReasonBackendUnavailable, true
	case errors.As(err, &extractErr):
		return extractErr.Code, false
	case errors.Is(err, context.DeadlineExceeded):
		return models.ReasonTimeout, false
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return models.ReasonStorage, false
	}
	return models.ReasonUnknown, false
}

// StorageError is a database failure while recording a processed document.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

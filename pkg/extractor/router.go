// Package extractor decides how a document's text is obtained and produces
// normalized per-page text. Direct text-layer extraction is tried first; if
// the text layer is too sparse the whole document is rasterized and run
// through OCR.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dtnitsch/lda-transparency/models"
	"golang.org/x/sync/errgroup"
)

// RecognitionOptions are passed to the recognizer for every page.
type RecognitionOptions struct {
	Languages        []string
	SegmentationMode int
	EngineMode       int
}

// Recognition is the OCR output for one page image.
type Recognition struct {
	Text       string
	Confidence float64 // mean word confidence, 0-100
	Words      int
}

// Rasterizer renders one page (1-based) of a document to an image file in dir
// and returns its path.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, page, dpi int, dir string) (string, error)
}

// Recognizer runs OCR over a page image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string, opts RecognitionOptions) (Recognition, error)
}

// availabilityChecker is implemented by backends that can cheaply report
// whether they are installed.
type availabilityChecker interface {
	Available() error
}

// Options configure the router. They are read-only once the router is built.
type Options struct {
	DPI              int
	Languages        []string
	DensityThreshold float64 // alphanumeric characters per page
	SamplePages      int     // pages sampled for density, 0 = all
	SegmentationMode int
	EngineMode       int
	OCRWorkers       int    // pages recognized concurrently within one document
	TempDir          string // parent for per-document image dirs, "" = os.TempDir()
}

// DefaultOptions mirrors the defaults of the configuration file.
func DefaultOptions() Options {
	return Options{
		DPI:              300,
		Languages:        []string{"eng", "urd"},
		DensityThreshold: 50,
		SamplePages:      3,
		SegmentationMode: 3,
		EngineMode:       1,
		OCRWorkers:       2,
	}
}

// Request describes one extraction.
type Request struct {
	Path string
	// Mode is the mode already recorded for this document version. When it
	// is known the router uses it instead of re-detecting.
	Mode     models.ExtractionMode
	ForceOCR bool
}

// Result is the outcome of a successful extraction.
type Result struct {
	Mode      models.ExtractionMode
	Pages     []models.Page
	Density   float64
	PageCount int
	Title     string
	Author    string
}

// Router classifies documents and extracts their text.
type Router struct {
	opts       Options
	text       TextLayer
	rasterizer Rasterizer
	recognizer Recognizer
}

// NewRouter builds a router. rasterizer and recognizer may be nil, in which
// case scanned documents fail with BackendUnavailableError.
func NewRouter(opts Options, text TextLayer, rasterizer Rasterizer, recognizer Recognizer) *Router {
	if text == nil {
		text = PDFTextLayer{}
	}
	if opts.OCRWorkers <= 0 {
		opts.OCRWorkers = 1
	}
	return &Router{opts: opts, text: text, rasterizer: rasterizer, recognizer: recognizer}
}

// Options returns the router configuration.
func (r *Router) Options() Options {
	return r.opts
}

// Extract returns every page of the document, all produced by the same path.
func (r *Router) Extract(ctx context.Context, req Request) (*Result, error) {
	content, err := r.text.Read(req.Path)
	if err != nil {
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) {
			return nil, err
		}
		return nil, &ExtractionError{Path: req.Path, Code: models.ReasonCorrupt, Err: err}
	}
	if len(content.Pages) == 0 {
		return nil, &ExtractionError{Path: req.Path, Code: models.ReasonEmpty, Err: ErrNoPages}
	}

	result := &Result{
		Density:   Density(content.Pages, r.opts.SamplePages),
		PageCount: len(content.Pages),
		Title:     content.Title,
		Author:    content.Author,
	}

	switch {
	case req.Mode.Known():
		result.Mode = req.Mode
	case req.ForceOCR:
		result.Mode = models.ModeScanned
	default:
		result.Mode = Classify(result.Density, r.opts.DensityThreshold)
	}

	if result.Mode == models.ModeSearchable {
		result.Pages = machinePages(content.Pages)
		return result, nil
	}

	pages, err := r.recognize(ctx, req.Path, len(content.Pages))
	if err != nil {
		return nil, err
	}
	result.Pages = pages
	return result, nil
}

func machinePages(texts []string) []models.Page {
	pages := make([]models.Page, len(texts))
	for i, raw := range texts {
		text := Normalize(raw)
		pages[i] = models.Page{
			Number:    i + 1,
			Text:      text,
			Source:    models.SourceMachine,
			CharCount: models.CountAlphanumeric(text),
		}
	}
	return pages
}

// CheckBackends reports the first missing recognition backend, if any.
func (r *Router) CheckBackends() error {
	if r.rasterizer == nil || r.recognizer == nil {
		return &BackendUnavailableError{Backend: "ocr", Err: ErrNoBackend}
	}
	for _, b := range []any{r.rasterizer, r.recognizer} {
		if checker, ok := b.(availabilityChecker); ok {
			if err := checker.Available(); err != nil {
				return err
			}
		}
	}
	return nil
}

// recognize rasterizes and OCRs every page. Pages are processed with at most
// OCRWorkers in flight and returned in page order.
func (r *Router) recognize(ctx context.Context, path string, pageCount int) ([]models.Page, error) {
	if err := r.CheckBackends(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(r.opts.TempDir, "lda-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	defer os.RemoveAll(dir)

	recOpts := RecognitionOptions{
		Languages:        r.opts.Languages,
		SegmentationMode: r.opts.SegmentationMode,
		EngineMode:       r.opts.EngineMode,
	}

	pages := make([]models.Page, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.OCRWorkers)
	for i := 0; i < pageCount; i++ {
		number := i + 1
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			image, err := r.rasterizer.Rasterize(gctx, path, number, r.opts.DPI, dir)
			if err != nil {
				return classifyPageError(gctx, path, number, err, false)
			}
			defer os.Remove(image)

			rec, err := r.recognizer.Recognize(gctx, image, recOpts)
			if err != nil {
				return classifyPageError(gctx, path, number, err, true)
			}
			text := Normalize(rec.Text)
			pages[number-1] = models.Page{
				Number:     number,
				Text:       text,
				Source:     models.SourceRecognized,
				Confidence: rec.Confidence,
				CharCount:  models.CountAlphanumeric(text),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return pages, nil
}

// classifyPageError keeps backend and context errors as they are. Other
// rasterizer errors mean the page cannot be rendered; other recognizer errors
// are treated as a crashing backend.
func classifyPageError(ctx context.Context, path string, page int, err error, recognizing bool) error {
	var backendErr *BackendUnavailableError
	switch {
	case errors.As(err, &backendErr):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case recognizing:
		return &BackendUnavailableError{Backend: "recognizer", Err: fmt.Errorf("page %d: %w", page, err)}
	default:
		return &ExtractionError{Path: path, Code: models.ReasonRender, Page: page, Err: err}
	}
}

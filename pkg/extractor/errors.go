package extractor

import (
	"errors"
	"fmt"
)

var (
	ErrNoPages   = errors.New("document has no pages")
	ErrNoBackend = errors.New("no recognition backend configured")
)

// ExtractionError is a permanent, per-document failure: the file is
// unreadable, has no pages, or a page could not be rendered.
type ExtractionError struct {
	Path string
	Code string // models.Reason* code
	Page int    // 0 when not page specific
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("extract %s: %s on page %d: %v", e.Path, e.Code, e.Page, e.Err)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Code, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// BackendUnavailableError means the rasterizer or recognizer is missing or
// crashed. The document is left for a later run rather than failed.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("recognition backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err leaves the document eligible for another
// attempt without any change to the document itself.
func IsRetryable(err error) bool {
	var backendErr *BackendUnavailableError
	return errors.As(err, &backendErr)
}

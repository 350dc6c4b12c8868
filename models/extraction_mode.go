package models

import "fmt"

// ExtractionMode is the document-level decision of how page text is obtained.
type ExtractionMode string

const (
	ModeUnknown    ExtractionMode = "unknown"
	ModeSearchable ExtractionMode = "searchable" // text layer present
	ModeScanned    ExtractionMode = "scanned"    // page images only, needs OCR
)

// ParseExtractionMode converts a stored or user supplied string to a mode.
// The empty string maps to ModeUnknown.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch ExtractionMode(s) {
	case "", ModeUnknown:
		return ModeUnknown, nil
	case ModeSearchable:
		return ModeSearchable, nil
	case ModeScanned:
		return ModeScanned, nil
	}
	return ModeUnknown, fmt.Errorf("unknown extraction mode: %q", s)
}

// Known reports whether the mode has been decided.
func (m ExtractionMode) Known() bool {
	return m == ModeSearchable || m == ModeScanned
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType is the kind of record a document was scraped as.
type DocumentType string

const (
	TypeRegulation     DocumentType = "regulation"
	TypeMeetingMinutes DocumentType = "meeting-minutes"
	TypeHousingScheme  DocumentType = "housing-scheme"
	TypeTender         DocumentType = "tender"
)

// DocumentTypes lists every valid document type in display order.
var DocumentTypes = []DocumentType{TypeRegulation, TypeMeetingMinutes, TypeHousingScheme, TypeTender}

// ParseDocumentType accepts both dashed and underscored spellings
// ("meeting_minutes" is what older scrapers wrote).
func ParseDocumentType(s string) (DocumentType, error) {
	normalized := DocumentType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, t := range DocumentTypes {
		if t == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q (valid: regulation, meeting-minutes, housing-scheme, tender)", s)
}

// Status is the processing state of a document.
type Status string

const (
	// StatusUnprocessed covers both freshly downloaded documents and documents
	// whose recognition backend was unavailable; both are picked up again.
	StatusUnprocessed Status = "unprocessed"
	StatusProcessed   Status = "processed"
	StatusFailed      Status = "failed"
)

// Reason codes recorded with failed or pending documents.
const (
	ReasonBackendUnavailable = "backend_unavailable"
	ReasonCorrupt            = "corrupt"
	ReasonEmpty              = "empty"
	ReasonRender             = "render"
	ReasonDownload           = "download_error"
	ReasonTimeout            = "timeout"
	ReasonStorage            = "storage_error"
	ReasonUnknown            = "unknown_error"
)

// Document is one downloaded record. A new ContentHash is a new version of
// the document and resets Mode to unknown.
type Document struct {
	ID             int64          `json:"id" yaml:"id"`
	URL            string         `json:"url" yaml:"url"`
	Title          string         `json:"title" yaml:"title"`
	Type           DocumentType   `json:"type" yaml:"type"`
	Path           string         `json:"path" yaml:"path"`
	ContentHash    string         `json:"content_hash" yaml:"content_hash"`
	FileSize       int64          `json:"file_size" yaml:"file_size"`
	PageCount      int            `json:"page_count" yaml:"page_count"`
	Mode           ExtractionMode `json:"mode" yaml:"mode"`
	Status         Status         `json:"status" yaml:"status"`
	FailureReason  string         `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	FailureMessage string         `json:"failure_message,omitempty" yaml:"failure_message,omitempty"`
	Attempts       int            `json:"attempts" yaml:"attempts"`
	TaxonomyHash   string         `json:"taxonomy_hash,omitempty" yaml:"taxonomy_hash,omitempty"`
	PDFTitle       string         `json:"pdf_title,omitempty" yaml:"pdf_title,omitempty"`
	PDFAuthor      string         `json:"pdf_author,omitempty" yaml:"pdf_author,omitempty"`
	OCRConfidence  float64        `json:"ocr_confidence,omitempty" yaml:"ocr_confidence,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty" yaml:"processed_at,omitempty"`
}

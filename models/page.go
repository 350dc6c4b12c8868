package models

import (
	"strings"
	"unicode"
)

// PageSource says how a page's text was obtained.
type PageSource string

const (
	SourceMachine    PageSource = "machine"    // read from the text layer
	SourceRecognized PageSource = "recognized" // produced by OCR
)

// Page holds the normalized text of a single page.
type Page struct {
	Number     int        `json:"number" yaml:"number"`
	Text       string     `json:"text" yaml:"text"`
	Source     PageSource `json:"source" yaml:"source"`
	Confidence float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"` // OCR mean word confidence, 0-100
	Language   string     `json:"language,omitempty" yaml:"language,omitempty"`
	CharCount  int        `json:"char_count" yaml:"char_count"`
}

// CountAlphanumeric returns the number of letter and digit runes in s.
func CountAlphanumeric(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// JoinPages concatenates page text in page order, one blank line apart.
func JoinPages(pages []Page) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// MeanConfidence averages OCR confidence over recognized pages that reported
// one. Machine pages are ignored.
func MeanConfidence(pages []Page) float64 {
	var sum float64
	var n int
	for _, p := range pages {
		if p.Source == SourceRecognized && p.Confidence > 0 {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

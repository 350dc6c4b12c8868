package extractor

import (
	"strings"
	"unicode"

	"github.com/dtnitsch/lda-transparency/models"
	"golang.org/x/text/unicode/norm"
)

// Normalize puts page text into the form stored and tagged downstream:
// NFC, LF line endings, no control characters, no trailing spaces, and at
// most one blank line in a row.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Map(dropControl, line)
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func dropControl(r rune) rune {
	if r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}

// Density is the mean number of alphanumeric characters per sampled page.
// sample <= 0 samples every page.
func Density(pages []string, sample int) float64 {
	n := len(pages)
	if sample > 0 && sample < n {
		n = sample
	}
	if n == 0 {
		return 0
	}
	total := 0
	for _, p := range pages[:n] {
		total += models.CountAlphanumeric(p)
	}
	return float64(total) / float64(n)
}

// Classify maps a density to an extraction mode. A density at or above the
// threshold means the text layer is usable.
func Classify(density, threshold float64) models.ExtractionMode {
	if density >= threshold {
		return models.ModeSearchable
	}
	return models.ModeScanned
}

// Package detector guesses the language of extracted page text.
package detector

import (
	"fmt"
	"strings"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/pemistahl/lingua-go"
)

// minLetters is the shortest text worth running detection on.
const minLetters = 20

// Detector maps page text to a lowercase ISO 639-3 code, restricted to the
// languages the documents are expected to be written in.
type Detector struct {
	lingua lingua.LanguageDetector
	single string // set when only one language is configured
}

// New builds a detector for the given tesseract/ISO 639-3 codes. Codes that
// are not natural languages, such as tesseract's "osd", are ignored.
func New(codes []string) (*Detector, error) {
	var langs []lingua.Language
	seen := make(map[lingua.Language]bool)
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" || code == "osd" {
			continue
		}
		lang, ok := languageFor(code)
		if !ok {
			return nil, fmt.Errorf("unsupported language code %q", code)
		}
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}

	switch len(langs) {
	case 0:
		return nil, fmt.Errorf("no languages configured")
	case 1:
		return &Detector{single: isoCode(langs[0])}, nil
	}
	return &Detector{
		lingua: lingua.NewLanguageDetectorBuilder().
			FromLanguages(langs...).
			WithMinimumRelativeDistance(0.1).
			Build(),
	}, nil
}

// Detect returns the language of text, or "" when the text is too short or
// no language is clearly ahead.
func (d *Detector) Detect(text string) string {
	if models.CountAlphanumeric(text) < minLetters {
		return ""
	}
	if d.single != "" {
		return d.single
	}
	lang, ok := d.lingua.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return isoCode(lang)
}

// Annotate sets Language on every page.
func (d *Detector) Annotate(pages []models.Page) {
	for i := range pages {
		pages[i].Language = d.Detect(pages[i].Text)
	}
}

// Dominant returns the most frequent page language, weighted by characters.
func Dominant(pages []models.Page) string {
	weight := make(map[string]int)
	best, bestWeight := "", 0
	for _, p := range pages {
		if p.Language == "" {
			continue
		}
		weight[p.Language] += p.CharCount
		if w := weight[p.Language]; w > bestWeight || (w == bestWeight && p.Language < best) {
			best, bestWeight = p.Language, w
		}
	}
	return best
}

func languageFor(code string) (lingua.Language, bool) {
	for _, lang := range lingua.AllLanguages() {
		if isoCode(lang) == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

func isoCode(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_3().String())
}

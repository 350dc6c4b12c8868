// Package tagger assigns advocacy topics to document text by keyword and
// regex matching against a Taxonomy. Tagging is a pure function of the text
// and the taxonomy.
package tagger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dtnitsch/lda-transparency/models"
	"golang.org/x/text/unicode/norm"
)

// Tag matches the whole text against every topic. A single occurrence of any
// pattern qualifies the topic.
func (t *Taxonomy) Tag(text string) []models.TagAssignment {
	return t.tag(text, nil)
}

// TagPages tags the concatenated pages and additionally records which pages
// each pattern occurred on.
func (t *Taxonomy) TagPages(pages []models.Page) []models.TagAssignment {
	return t.tag(models.JoinPages(pages), pages)
}

type preparedText struct {
	text   string // NFC
	folded string
}

func prepare(s string) preparedText {
	n := norm.NFC.String(s)
	return preparedText{text: n, folded: fold(n)}
}

func (p pattern) count(pt preparedText) int {
	if p.re != nil {
		n := 0
		for _, loc := range p.re.FindAllStringIndex(pt.text, -1) {
			// Empty matches are not evidence.
			if loc[1] > loc[0] {
				n++
			}
		}
		return n
	}
	return strings.Count(pt.folded, p.folded)
}

func (t *Taxonomy) tag(text string, pages []models.Page) []models.TagAssignment {
	full := prepare(text)
	prepared := make([]preparedText, len(pages))
	for i, pg := range pages {
		prepared[i] = prepare(pg.Text)
	}

	var out []models.TagAssignment
	for _, tp := range t.topics {
		var assignment models.TagAssignment
		pageSet := make(map[int]bool)

		for _, p := range tp.patterns {
			n := p.count(full)
			if n == 0 {
				continue
			}
			m := models.Match{Pattern: p.spec.Pattern, Regex: p.spec.Regex, Occurrences: n}
			for i, pt := range prepared {
				if p.count(pt) > 0 {
					m.Pages = append(m.Pages, pages[i].Number)
					pageSet[pages[i].Number] = true
				}
			}
			sort.Ints(m.Pages)
			assignment.Matches = append(assignment.Matches, m)
			assignment.Occurrences += n
		}

		if len(assignment.Matches) == 0 {
			continue
		}
		assignment.Topic = tp.name
		for n := range pageSet {
			assignment.Pages = append(assignment.Pages, n)
		}
		sort.Ints(assignment.Pages)
		out = append(out, assignment)
	}
	return out
}

// Snippet is one located occurrence of a topic pattern with surrounding text.
type Snippet struct {
	Pattern string
	Offset  int // byte offset in the NFC text
	Context string
}

// Evidence locates occurrences of a topic's patterns in text and returns up
// to limit snippets with width bytes of context on each side. Literal
// patterns are located with simple case folding.
func (t *Taxonomy) Evidence(text, topicName string, width, limit int) []Snippet {
	nfc := norm.NFC.String(text)
	var out []Snippet
	for _, tp := range t.topics {
		if tp.name != topicName {
			continue
		}
		for _, p := range tp.patterns {
			re := p.re
			if re == nil {
				re = literalRegexp(p.spec.Pattern)
			}
			for _, loc := range re.FindAllStringIndex(nfc, -1) {
				if loc[1] == loc[0] {
					continue
				}
				if limit > 0 && len(out) >= limit {
					return out
				}
				start := runeStart(nfc, loc[0]-width)
				end := runeStart(nfc, loc[1]+width)
				out = append(out, Snippet{
					Pattern: p.spec.Pattern,
					Offset:  loc[0],
					Context: strings.Join(strings.Fields(nfc[start:end]), " "),
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func literalRegexp(s string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(norm.NFC.String(s)))
}

// runeStart clamps i into s and moves it back to the start of a rune.
func runeStart(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// Summary renders assignments for humans, busiest topic first.
func Summary(assignments []models.TagAssignment) string {
	if len(assignments) == 0 {
		return "No advocacy topics detected."
	}
	sorted := make([]models.TagAssignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Occurrences != sorted[j].Occurrences {
			return sorted[i].Occurrences > sorted[j].Occurrences
		}
		return sorted[i].Topic < sorted[j].Topic
	})

	var sb strings.Builder
	sb.WriteString("Detected advocacy topics:")
	for _, a := range sorted {
		fmt.Fprintf(&sb, "\n  - %s: %d mentions across %d pages (%s)",
			a.Topic, a.Occurrences, len(a.Pages), strings.Join(a.MatchedPatterns(), ", "))
	}
	return sb.String()
}

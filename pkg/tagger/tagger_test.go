package tagger

import (
	"errors"
	"strings"
	"testing"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/google/go-cmp/cmp"
)

func mustTaxonomy(t *testing.T, specs map[string][]PatternSpec) *Taxonomy {
	t.Helper()
	tax, err := NewTaxonomy(specs)
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	return tax
}

func literals(words ...string) []PatternSpec {
	out := make([]PatternSpec, len(words))
	for i, w := range words {
		out[i] = PatternSpec{Pattern: w}
	}
	return out
}

func topics(assignments []models.TagAssignment) []string {
	var out []string
	for _, a := range assignments {
		out = append(out, a.Topic)
	}
	return out
}

func TestTag_Footpath(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": literals("footpath", "pedestrian", "sidewalk"),
	})

	got := tax.Tag("We discussed footpath widening near Mall Road.")
	want := []models.TagAssignment{{
		Topic:       "walkability",
		Matches:     []models.Match{{Pattern: "footpath", Occurrences: 1}},
		Occurrences: 1,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tag() mismatch (-want +got):\n%s", diff)
	}
}

func TestTag_CaseInsensitive(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{"walkability": literals("walkability")})

	upper := tax.Tag("Walkability matters")
	lower := tax.Tag("walkability matters")
	if diff := cmp.Diff(lower, upper); diff != "" {
		t.Errorf("case changed matches (-lower +upper):\n%s", diff)
	}
	if len(upper) != 1 {
		t.Fatalf("Tag() returned %d assignments, want 1", len(upper))
	}

	// Full Unicode folding: "STRASSE" folds to the same string as "straße".
	tax = mustTaxonomy(t, map[string][]PatternSpec{"streets": literals("straße")})
	if got := tax.Tag("Die STRASSE wird verbreitert"); len(got) != 1 {
		t.Errorf("Tag() with full case folding = %v, want one assignment", got)
	}
}

func TestTag_Regex(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": {{Pattern: `side ?walks?`, Regex: true}},
		"parking":     {{Pattern: `\bparking (plaza|lot)s?\b`, Regex: true}},
	})

	got := tax.Tag("New SIDEWALKS and a side walk, but no parking here.")
	if diff := cmp.Diff([]string{"walkability"}, topics(got)); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
	if got[0].Occurrences != 2 {
		t.Errorf("Occurrences = %d, want 2", got[0].Occurrences)
	}
}

func TestTag_EmptyRegexMatchRejected(t *testing.T) {
	_, err := NewTaxonomy(map[string][]PatternSpec{
		"cycling": {{Pattern: `(cycle )*`, Regex: true}},
	})
	var taxErr *TaxonomyError
	if !errors.As(err, &taxErr) || !errors.Is(err, ErrMatchesEmpty) {
		t.Fatalf("NewTaxonomy() error = %v, want TaxonomyError wrapping ErrMatchesEmpty", err)
	}
}

func TestTag_ZeroWidthMatchesNotCounted(t *testing.T) {
	// Both patterns compile but produce zero-width matches at word boundaries.
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"cycling": {{Pattern: `cycle|\b`, Regex: true}},
		"traffic": {{Pattern: `\b`, Regex: true}},
	})
	if got := tax.Tag("Minutes of the road safety committee."); len(got) != 0 {
		t.Errorf("Tag() = %v, want none", got)
	}
	got := tax.Tag("A cycle lane is planned.")
	if len(got) != 1 || got[0].Topic != "cycling" || got[0].Occurrences != 1 {
		t.Errorf("Tag() = %+v, want one cycling occurrence", got)
	}
	if snippets := tax.Evidence("A cycle lane is planned.", "cycling", 10, 0); len(snippets) != 1 {
		t.Errorf("Evidence() = %+v, want one snippet", snippets)
	}
}

func TestTag_NoMatches(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{"parking": literals("parking")})
	if got := tax.Tag("Budget approved for the annual audit."); len(got) != 0 {
		t.Errorf("Tag() = %v, want none", got)
	}
	if got := tax.Tag(""); len(got) != 0 {
		t.Errorf("Tag(\"\") = %v, want none", got)
	}
}

func TestTag_SharedKeywordQualifiesAllTopics(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"public_transport": literals("bus lane", "metro"),
		"traffic":          literals("bus lane", "congestion"),
	})
	got := tax.Tag("A dedicated bus lane is proposed.")
	if diff := cmp.Diff([]string{"public_transport", "traffic"}, topics(got)); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
}

func TestTag_Idempotent(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": literals("footpath", "pedestrian"),
		"parking":     literals("parking"),
		"green":       {{Pattern: `parks?\b`, Regex: true}},
	})
	pages := []models.Page{
		{Number: 1, Text: "Pedestrian crossings and a footpath."},
		{Number: 2, Text: "Parking bays replace the park."},
	}
	first := tax.TagPages(pages)
	second := tax.TagPages(pages)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestTag_Monotonic(t *testing.T) {
	text := "The sidewalk near the canal will be repaired; parking fees rise."
	before := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": literals("sidewalk"),
		"parking":     literals("parking"),
	}).Tag(text)

	after := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": literals("sidewalk", "canal"),
		"parking":     literals("parking"),
	}).Tag(text)

	has := func(as []models.TagAssignment, topic, pattern string) bool {
		for _, a := range as {
			if a.Topic != topic {
				continue
			}
			for _, m := range a.Matches {
				if m.Pattern == pattern {
					return true
				}
			}
		}
		return false
	}
	for _, a := range before {
		for _, m := range a.Matches {
			if !has(after, a.Topic, m.Pattern) {
				t.Errorf("match %s/%s lost after adding a keyword", a.Topic, m.Pattern)
			}
		}
	}
	if !has(after, "walkability", "canal") {
		t.Errorf("new keyword did not match")
	}
}

func TestTagPages_Distribution(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{
		"walkability": literals("footpath", "pedestrian"),
	})
	pages := []models.Page{
		{Number: 1, Text: "Footpath repairs."},
		{Number: 2, Text: "Nothing relevant."},
		{Number: 3, Text: "Pedestrian bridge and another footpath; a FOOTPATH again."},
	}
	got := tax.TagPages(pages)
	want := []models.TagAssignment{{
		Topic: "walkability",
		Matches: []models.Match{
			{Pattern: "footpath", Occurrences: 3, Pages: []int{1, 3}},
			{Pattern: "pedestrian", Occurrences: 1, Pages: []int{3}},
		},
		Occurrences: 4,
		Pages:       []int{1, 3},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TagPages() mismatch (-want +got):\n%s", diff)
	}
}

func TestEvidence(t *testing.T) {
	tax := mustTaxonomy(t, map[string][]PatternSpec{"walkability": literals("footpath")})
	text := "Item 4: the Footpath along Canal Road. Item 9: footpath encroachments."
	got := tax.Evidence(text, "walkability", 10, 0)
	if len(got) != 2 {
		t.Fatalf("Evidence() returned %d snippets, want 2", len(got))
	}
	if got[0].Offset >= got[1].Offset {
		t.Errorf("snippets not ordered by offset: %+v", got)
	}
	if !strings.Contains(got[0].Context, "Footpath") {
		t.Errorf("Context = %q, want it to contain the match", got[0].Context)
	}

	if limited := tax.Evidence(text, "walkability", 10, 1); len(limited) != 1 {
		t.Errorf("Evidence(limit=1) returned %d", len(limited))
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(nil); got != "No advocacy topics detected." {
		t.Errorf("Summary(nil) = %q", got)
	}
	got := Summary([]models.TagAssignment{
		{Topic: "parking", Occurrences: 1, Pages: []int{1}, Matches: []models.Match{{Pattern: "parking"}}},
		{Topic: "walkability", Occurrences: 5, Pages: []int{1, 2}, Matches: []models.Match{{Pattern: "footpath"}}},
	})
	lines := strings.Split(got, "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "walkability: 5 mentions across 2 pages") {
		t.Errorf("Summary() = %q", got)
	}
}

package tagger

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNewTaxonomy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		specs   map[string][]PatternSpec
		wantErr error
		topic   string
		pattern string
	}{
		{
			name:    "malformed regex",
			specs:   map[string][]PatternSpec{"walkability": {{Pattern: "footpath"}, {Pattern: "(unclosed", Regex: true}}},
			topic:   "walkability",
			pattern: "(unclosed",
		},
		{
			name:    "empty topic name",
			specs:   map[string][]PatternSpec{"  ": {{Pattern: "x"}}},
			wantErr: ErrEmptyTopic,
		},
		{
			name: "duplicate topic after trimming",
			specs: map[string][]PatternSpec{
				"parking":  {{Pattern: "parking"}},
				"parking ": {{Pattern: "car park"}},
			},
			wantErr: ErrDuplicateTopic,
			topic:   "parking",
		},
		{
			name:    "topic without patterns",
			specs:   map[string][]PatternSpec{"parking": {}},
			wantErr: ErrNoPatterns,
			topic:   "parking",
		},
		{
			name:    "blank pattern",
			specs:   map[string][]PatternSpec{"parking": {{Pattern: " "}}},
			wantErr: ErrEmptyPattern,
			topic:   "parking",
		},
		{
			name:    "regex matching empty string",
			specs:   map[string][]PatternSpec{"parking": {{Pattern: "a*", Regex: true}}},
			wantErr: ErrMatchesEmpty,
			topic:   "parking",
			pattern: "a*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax, err := NewTaxonomy(tt.specs)
			if err == nil {
				t.Fatalf("NewTaxonomy() = %v, want error", tax)
			}
			var taxErr *TaxonomyError
			if !errors.As(err, &taxErr) {
				t.Fatalf("NewTaxonomy() error = %T, want *TaxonomyError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("NewTaxonomy() error = %v, want %v", err, tt.wantErr)
			}
			if tt.topic != "" && taxErr.Topic != tt.topic {
				t.Errorf("TaxonomyError.Topic = %q, want %q", taxErr.Topic, tt.topic)
			}
			if tt.pattern != "" && taxErr.Pattern != tt.pattern {
				t.Errorf("TaxonomyError.Pattern = %q, want %q", taxErr.Pattern, tt.pattern)
			}
		})
	}
}

func TestNewTaxonomy_DeduplicatesPatterns(t *testing.T) {
	tax, err := NewTaxonomy(map[string][]PatternSpec{
		"parking": {{Pattern: "parking"}, {Pattern: "parking"}, {Pattern: "parking", Regex: true}},
	})
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	if got := len(tax.Patterns("parking")); got != 2 {
		t.Errorf("len(Patterns) = %d, want 2", got)
	}
}

func TestTaxonomy_Fingerprint(t *testing.T) {
	specs := map[string][]PatternSpec{
		"walkability": {{Pattern: "footpath"}, {Pattern: "sidewalk"}},
		"parking":     {{Pattern: "parking"}},
	}
	a, err := NewTaxonomy(specs)
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	b, err := NewTaxonomy(specs)
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ for identical taxonomies")
	}

	specs["parking"] = append(specs["parking"], PatternSpec{Pattern: "car park"})
	c, err := NewTaxonomy(specs)
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Errorf("fingerprint unchanged after adding a pattern")
	}
}

func TestTaxonomy_TopicsSorted(t *testing.T) {
	tax, err := NewTaxonomy(map[string][]PatternSpec{
		"zoning":      {{Pattern: "zoning"}},
		"environment": {{Pattern: "trees"}},
		"parking":     {{Pattern: "parking"}},
	})
	if err != nil {
		t.Fatalf("NewTaxonomy() error = %v", err)
	}
	got := tax.Topics()
	want := []string{"environment", "parking", "zoning"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Topics() = %v, want %v", got, want)
		}
	}
}

func TestPatternSpec_UnmarshalYAML(t *testing.T) {
	doc := `
walkability:
  - footpath
  - pattern: "side ?walks?"
    regex: true
`
	var specs map[string][]PatternSpec
	if err := yaml.Unmarshal([]byte(doc), &specs); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	got := specs["walkability"]
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != (PatternSpec{Pattern: "footpath"}) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1] != (PatternSpec{Pattern: "side ?walks?", Regex: true}) {
		t.Errorf("second = %+v", got[1])
	}
}

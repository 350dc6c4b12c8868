package tagger

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyTopic     = errors.New("empty topic name")
	ErrDuplicateTopic = errors.New("duplicate topic name")
	ErrNoPatterns     = errors.New("topic has no patterns")
	ErrEmptyPattern   = errors.New("empty pattern")
	ErrMatchesEmpty   = errors.New("regex matches the empty string")
)

// TaxonomyError reports an unusable taxonomy entry. It is returned when the
// taxonomy is built, never while tagging a document.
type TaxonomyError struct {
	Topic   string
	Pattern string
	Err     error
}

func (e *TaxonomyError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("taxonomy: topic %q pattern %q: %v", e.Topic, e.Pattern, e.Err)
	}
	return fmt.Sprintf("taxonomy: topic %q: %v", e.Topic, e.Err)
}

func (e *TaxonomyError) Unwrap() error { return e.Err }

// PatternSpec is one keyword or phrase as written in configuration.
// In YAML it is either a plain string or a mapping {pattern, regex}.
type PatternSpec struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Regex   bool   `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// UnmarshalYAML accepts both `- footpath` and `- {pattern: "x+", regex: true}`.
func (p *PatternSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.Pattern = value.Value
		p.Regex = false
		return nil
	}
	type plain PatternSpec
	var v plain
	if err := value.Decode(&v); err != nil {
		return err
	}
	*p = PatternSpec(v)
	return nil
}

type pattern struct {
	spec   PatternSpec
	folded string         // literal patterns only
	re     *regexp.Regexp // regex patterns only
}

type topic struct {
	name     string
	patterns []pattern
}

// Taxonomy is a validated, immutable set of topics. It is safe to share
// between goroutines.
type Taxonomy struct {
	topics      []topic
	fingerprint string
}

// NewTaxonomy validates and compiles every pattern up front. Topics are held
// in name order so that validation errors and tag output are deterministic.
func NewTaxonomy(specs map[string][]PatternSpec) (*Taxonomy, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &Taxonomy{topics: make([]topic, 0, len(names))}
	seenTopics := make(map[string]bool, len(names))
	for _, rawName := range names {
		name := strings.TrimSpace(rawName)
		if name == "" {
			return nil, &TaxonomyError{Topic: rawName, Err: ErrEmptyTopic}
		}
		if seenTopics[name] {
			return nil, &TaxonomyError{Topic: name, Err: ErrDuplicateTopic}
		}
		seenTopics[name] = true
		if len(specs[rawName]) == 0 {
			return nil, &TaxonomyError{Topic: name, Err: ErrNoPatterns}
		}

		tp := topic{name: name}
		seen := make(map[PatternSpec]bool)
		for _, spec := range specs[rawName] {
			if strings.TrimSpace(spec.Pattern) == "" {
				return nil, &TaxonomyError{Topic: name, Pattern: spec.Pattern, Err: ErrEmptyPattern}
			}
			if seen[spec] {
				continue
			}
			seen[spec] = true

			p, err := compilePattern(spec)
			if err != nil {
				return nil, &TaxonomyError{Topic: name, Pattern: spec.Pattern, Err: err}
			}
			tp.patterns = append(tp.patterns, p)
		}
		t.topics = append(t.topics, tp)
	}
	// Trimming can reorder names that sorted differently with whitespace.
	sort.Slice(t.topics, func(i, j int) bool { return t.topics[i].name < t.topics[j].name })
	t.fingerprint = t.computeFingerprint()
	return t, nil
}

func compilePattern(spec PatternSpec) (pattern, error) {
	if !spec.Regex {
		return pattern{spec: spec, folded: fold(spec.Pattern)}, nil
	}
	re, err := regexp.Compile("(?i)" + spec.Pattern)
	if err != nil {
		return pattern{}, err
	}
	if re.MatchString("") {
		return pattern{}, ErrMatchesEmpty
	}
	return pattern{spec: spec, re: re}, nil
}

// fold normalizes to NFC and applies full Unicode case folding.
// cases.Caser is stateful, so a new one is made per call.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Topics returns the topic names in sorted order.
func (t *Taxonomy) Topics() []string {
	out := make([]string, len(t.topics))
	for i, tp := range t.topics {
		out[i] = tp.name
	}
	return out
}

// Patterns returns a copy of the patterns configured for a topic.
func (t *Taxonomy) Patterns(name string) []PatternSpec {
	for _, tp := range t.topics {
		if tp.name != name {
			continue
		}
		out := make([]PatternSpec, len(tp.patterns))
		for i, p := range tp.patterns {
			out[i] = p.spec
		}
		return out
	}
	return nil
}

// Fingerprint identifies the taxonomy content. Assignments stored with a
// different fingerprint are stale.
func (t *Taxonomy) Fingerprint() string {
	return t.fingerprint
}

func (t *Taxonomy) computeFingerprint() string {
	h := sha256.New()
	for _, tp := range t.topics {
		for _, p := range tp.patterns {
			fmt.Fprintf(h, "%s\x00%s\x00%t\n", tp.name, p.spec.Pattern, p.spec.Regex)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

package models

// Match is the evidence for one pattern of a topic.
type Match struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Regex       bool   `json:"regex,omitempty" yaml:"regex,omitempty"`
	Occurrences int    `json:"occurrences" yaml:"occurrences"`
	Pages       []int  `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// TagAssignment relates a document to a topic. It is derived data: it is
// recomputed from page text and the taxonomy and never edited by hand.
type TagAssignment struct {
	Topic       string  `json:"topic" yaml:"topic"`
	Matches     []Match `json:"matches" yaml:"matches"`
	Occurrences int     `json:"occurrences" yaml:"occurrences"`
	Pages       []int   `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// MatchedPatterns returns the matched pattern strings in taxonomy order.
func (t TagAssignment) MatchedPatterns() []string {
	out := make([]string, len(t.Matches))
	for i, m := range t.Matches {
		out[i] = m.Pattern
	}
	return out
}

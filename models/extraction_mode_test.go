package models

import "testing"

func TestParseExtractionMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ExtractionMode
		wantErr bool
	}{
		{"", ModeUnknown, false},
		{"unknown", ModeUnknown, false},
		{"searchable", ModeSearchable, false},
		{"scanned", ModeScanned, false},
		{"mixed", ModeUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseExtractionMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseExtractionMode(%q) = %q, %v", tt.in, got, err)
		}
		if got.Known() != (tt.want != ModeUnknown) {
			t.Errorf("%q.Known() = %v", got, got.Known())
		}
	}
}

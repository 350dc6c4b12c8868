package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Meeting is a row of the authority meetings table attached to the
// document its download link points at.
type Meeting struct {
	DocumentID int64  `json:"document_id" yaml:"document_id"`
	SrNo       string `json:"sr_no" yaml:"sr_no"`
	// DateText is the date exactly as listed; Date is set when it parses.
	DateText   string     `json:"date_text" yaml:"date_text"`
	Date       *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Year       int        `json:"year" yaml:"year"`
	SourcePage string     `json:"source_page" yaml:"source_page"`
}

var meetingDateLayouts = []string{
	"2 January, 2006",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan, 2006",
	"2 Jan 2006",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02",
}

// ParseMeetingDate parses the date formats used on the meetings page.
func ParseMeetingDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range meetingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseYearRange accepts "2019" or "2019-2023" and returns the inclusive
// bounds.
func ParseYearRange(s string) (from, to int, err error) {
	first, last, isRange := strings.Cut(strings.TrimSpace(s), "-")
	if from, err = parseYear(first); err != nil {
		return 0, 0, err
	}
	if !isRange {
		return from, from, nil
	}
	if to, err = parseYear(last); err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, fmt.Errorf("invalid year range %q: end before start", s)
	}
	return from, to, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return y, nil
}

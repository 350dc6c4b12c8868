package common

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/dtnitsch/lda-transparency/pkg/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
)

func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderResults prints one row per document followed by a summary line.
// Failed and deferred documents keep their reason code in the Status column.
func RenderResults(w io.Writer, results []pipeline.Result) {
	t := NewTable(w)
	t.AppendHeader(table.Row{"ID", "Title", "Status", "Mode", "Pages", "Conf", "Topics", "Time"})
	processed, pending, failed := 0, 0, 0
	for _, r := range results {
		status := string(r.Status)
		if r.ErrorType != "" {
			status += " (" + r.ErrorType + ")"
		}
		switch {
		case r.OK():
			processed++
		case r.Status == models.StatusUnprocessed:
			pending++
		default:
			failed++
		}
		t.AppendRow(table.Row{
			idOrDash(r.DocumentID),
			Truncate(titleOrURL(r.Title, r.URL), 40),
			status,
			modeOrDash(r.Mode),
			r.Pages,
			confidence(r.Confidence),
			topics(r.Tags),
			r.Duration.Round(10 * time.Millisecond),
		})
	}
	t.Render()
	fmt.Fprintf(w, "%d processed, %d pending, %d failed\n", processed, pending, failed)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n || n < 4 {
		return s
	}
	return string(r[:n-3]) + "..."
}

func titleOrURL(title, url string) string {
	if title != "" {
		return title
	}
	return url
}

func idOrDash(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}

func modeOrDash(m models.ExtractionMode) string {
	if m == "" || m == models.ModeUnknown {
		return "-"
	}
	return string(m)
}

func confidence(c float64) string {
	if c == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", c)
}

func topics(tags []models.TagAssignment) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Topic
	}
	return strings.Join(names, ", ")
}

package db

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dtnitsch/lda-transparency/internal/common"
	"github.com/dtnitsch/lda-transparency/models"
	dbpkg "github.com/dtnitsch/lda-transparency/pkg/db"
	"github.com/dtnitsch/lda-transparency/pkg/storage"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

// SearchAction runs a full-text query over stored page text.
func SearchAction(c *cli.Context) error {
	if c.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: lda search <query> [--topic <topic>] [--type <type>] [--limit N]")
		return cli.Exit("", 2)
	}
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()

	opts := dbpkg.SearchOptions{
		Query: strings.Join(c.Args().Slice(), " "),
		Topic: c.String("topic"),
		Limit: c.Int("limit"),
		Raw:   c.Bool("raw"),
	}
	if t := c.String("type"); t != "" {
		if opts.Type, err = models.ParseDocumentType(t); err != nil {
			return common.Fatal(env.Logger, "Invalid flags", err)
		}
	}

	hits, err := env.DB.Search(c.Context, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(hits) == 0 {
		fmt.Printf("No matches for %q\n", opts.Query)
		return nil
	}

	t := common.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Title", "Type", "Page", "Snippet"})
	for _, h := range hits {
		title := h.Title
		if title == "" {
			title = h.URL
		}
		t.AppendRow(table.Row{h.DocumentID, common.Truncate(title, 40), h.Type, h.Page, strings.Join(strings.Fields(h.Snippet), " ")})
	}
	t.Render()
	fmt.Printf("\n%d matches. Use 'lda show <id>' to see a document.\n", len(hits))
	return nil
}

// StatsAction prints totals by type, status and mode, the top topics and the
// failed documents with their reason codes.
func StatsAction(c *cli.Context) error {
	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()

	stats, err := env.DB.Stats(c.Context, c.Int("top"))
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	fmt.Printf("Documents: %d (%s), pages: %d\n\n", stats.Documents, humanize.Bytes(uint64(stats.TotalBytes)), stats.Pages)

	t := common.NewTable(os.Stdout)
	t.AppendHeader(table.Row{"Group", "Value", "Documents"})
	appendCounts(t, "type", stats.ByType)
	appendCounts(t, "status", stats.ByStatus)
	appendCounts(t, "mode", stats.ByMode)
	appendCounts(t, "reason", stats.ByReason)
	t.Render()

	if len(stats.TopTopics) > 0 {
		fmt.Println()
		t = common.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"Topic", "Documents", "Mentions"})
		for _, tc := range stats.TopTopics {
			t.AppendRow(table.Row{tc.Topic, tc.Documents, humanize.Comma(int64(tc.Occurrences))})
		}
		t.Render()
	}

	if len(stats.Failed) > 0 {
		fmt.Println()
		t = common.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"ID", "URL", "Reason", "Attempts", "Updated"})
		for _, d := range stats.Failed {
			t.AppendRow(table.Row{d.ID, common.Truncate(d.URL, 60), d.FailureReason, d.Attempts, humanize.Time(d.UpdatedAt)})
		}
		t.Render()
	}
	return nil
}

func appendCounts(t table.Writer, group string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.AppendRow(table.Row{group, k, counts[k]})
	}
}

// ShowAction prints one document with its tags and, unless --no-pages is
// set, its page text.
func ShowAction(c *cli.Context) error {
	if c.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: lda show <id>")
		return cli.Exit("", 2)
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid document ID: %s", c.Args().First()), 2)
	}

	env, err := common.Setup(c, true)
	if err != nil {
		return common.Fatal(nil, "Setup failed", err)
	}
	defer env.Close()
	ctx := c.Context

	doc, err := env.DB.GetDocument(ctx, id)
	if errors.Is(err, dbpkg.ErrNotFound) {
		return cli.Exit(fmt.Sprintf("document %d not found", id), 1)
	}
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	tags, err := env.DB.GetTags(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get tags: %w", err)
	}
	pages, err := env.DB.GetPages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get pages: %w", err)
	}

	fmt.Printf("Document %d: %s\n", doc.ID, doc.Title)
	fmt.Printf("  URL:      %s\n", doc.URL)
	fmt.Printf("  Type:     %s\n", doc.Type)
	if meeting, err := env.DB.GetMeeting(ctx, id); err == nil {
		fmt.Printf("  Meeting:  %s\n", meetingLine(meeting))
	} else if !errors.Is(err, dbpkg.ErrNotFound) {
		return fmt.Errorf("failed to get meeting: %w", err)
	}
	fmt.Printf("  File:     %s\n", fileLine(env.Config.DataDir, doc))
	fmt.Printf("  Status:   %s", doc.Status)
	if doc.FailureReason != "" {
		fmt.Printf(" (%s: %s)", doc.FailureReason, doc.FailureMessage)
	}
	fmt.Println()
	fmt.Printf("  Mode:     %s, %d pages", doc.Mode, doc.PageCount)
	if doc.OCRConfidence > 0 {
		fmt.Printf(", OCR confidence %.1f", doc.OCRConfidence)
	}
	fmt.Println()
	if doc.ProcessedAt != nil {
		fmt.Printf("  Processed: %s\n", humanize.Time(*doc.ProcessedAt))
	}

	if len(tags) > 0 {
		fmt.Println()
		t := common.NewTable(os.Stdout)
		t.AppendHeader(table.Row{"Topic", "Mentions", "Pages", "Patterns"})
		for _, tag := range tags {
			t.AppendRow(table.Row{tag.Topic, tag.Occurrences, joinInts(tag.Pages), strings.Join(tag.MatchedPatterns(), ", ")})
		}
		t.Render()
	}

	if c.Bool("no-pages") {
		return nil
	}
	for _, p := range pages {
		fmt.Printf("\n--- Page %d (%s", p.Number, p.Source)
		if p.Language != "" {
			fmt.Printf(", %s", p.Language)
		}
		fmt.Println(") ---")
		fmt.Println(p.Text)
	}
	return nil
}

// fileLine describes the stored PDF as it is on disk now, falling back to the
// size recorded at download time when the file is gone.
func fileLine(dataDir string, doc *models.Document) string {
	if doc.Path == "" {
		return "(not downloaded)"
	}
	store, err := storage.New(dataDir)
	if err != nil {
		return fmt.Sprintf("%s (%s recorded)", doc.Path, humanize.Bytes(uint64(doc.FileSize)))
	}
	stats, err := store.GetFileStats(doc.Path)
	if err != nil {
		return fmt.Sprintf("%s (missing, %s recorded)", doc.Path, humanize.Bytes(uint64(doc.FileSize)))
	}
	return fmt.Sprintf("%s (%s, modified %s)", doc.Path, humanize.Bytes(uint64(stats.SizeBytes)), humanize.Time(stats.ModTime))
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func meetingLine(m *models.Meeting) string {
	date := m.DateText
	if m.Date != nil {
		date = m.Date.Format("2 January 2006")
	}
	if m.SrNo != "" {
		return fmt.Sprintf("%s (sr. %s, %d)", date, m.SrNo, m.Year)
	}
	return fmt.Sprintf("%s (%d)", date, m.Year)
}

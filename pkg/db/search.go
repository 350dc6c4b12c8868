package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtnitsch/lda-transparency/models"
)

// SearchOptions narrows a full-text search.
type SearchOptions struct {
	Query string
	Topic string // only documents tagged with this topic
	Type  models.DocumentType
	Limit int
	// Raw passes Query to FTS5 unchanged so that operators (OR, NEAR,
	// prefix*) can be used. Otherwise every term is quoted.
	Raw bool
}

// SearchHit is one matching page.
type SearchHit struct {
	DocumentID int64
	Title      string
	URL        string
	Type       models.DocumentType
	Page       int
	Snippet    string
	Rank       float64
}

// Search runs a full-text query over page text, best matches first.
func (db *DB) Search(ctx context.Context, opts SearchOptions) ([]SearchHit, error) {
	match := opts.Query
	if !opts.Raw {
		match = quoteTerms(opts.Query)
	}
	if match == "" {
		return nil, fmt.Errorf("empty search query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT d.document_id, COALESCE(d.title, ''), d.url, d.doc_type, p.page_number,
		       snippet(pages_fts, 0, '[', ']', '...', 12), bm25(pages_fts)
		FROM pages_fts
		JOIN pages p ON p.page_id = pages_fts.rowid
		JOIN documents d ON d.document_id = p.document_id
		WHERE pages_fts MATCH ?`
	args := []any{match}
	if opts.Topic != "" {
		query += ` AND EXISTS (SELECT 1 FROM tag_assignments t WHERE t.document_id = d.document_id AND t.topic = ?)`
		args = append(args, opts.Topic)
	}
	if opts.Type != "" {
		query += ` AND d.doc_type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY bm25(pages_fts), d.document_id, p.page_number LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var docType string
		if err := rows.Scan(&hit.DocumentID, &hit.Title, &hit.URL, &docType, &hit.Page, &hit.Snippet, &hit.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hit.Type = models.DocumentType(docType)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return hits, nil
}

// quoteTerms turns free text into an FTS5 query that ANDs every term, so
// punctuation in user input is never parsed as query syntax.
func quoteTerms(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// TopicCount is how often a topic was assigned.
type TopicCount struct {
	Topic       string
	Documents   int
	Occurrences int
}

// Stats summarizes the database contents.
type Stats struct {
	Documents  int
	Pages      int
	TotalBytes int64
	ByType     map[string]int
	ByStatus   map[string]int
	ByMode     map[string]int
	ByReason   map[string]int
	TopTopics  []TopicCount
	Failed     []models.Document
}

// Stats collects totals by type, status and mode, the most assigned topics,
// and every failed document. topLimit <= 0 returns every topic.
func (db *DB) Stats(ctx context.Context, topLimit int) (*Stats, error) {
	stats := &Stats{}

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM documents
	`).Scan(&stats.Documents, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&stats.Pages); err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	groups := []struct {
		column string
		into   *map[string]int
	}{
		{"doc_type", &stats.ByType},
		{"status", &stats.ByStatus},
		{"extraction_mode", &stats.ByMode},
		{"failure_reason", &stats.ByReason},
	}
	for _, g := range groups {
		counts, err := db.countBy(ctx, g.column)
		if err != nil {
			return nil, err
		}
		*g.into = counts
	}

	topics, err := db.topTopics(ctx, topLimit)
	if err != nil {
		return nil, err
	}
	stats.TopTopics = topics

	stats.Failed, err = db.ListDocumentsByStatus(ctx, models.StatusFailed, 0)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (db *DB) topTopics(ctx context.Context, limit int) ([]TopicCount, error) {
	query := `
		SELECT topic, COUNT(*), SUM(occurrences)
		FROM tag_assignments
		GROUP BY topic
		ORDER BY COUNT(*) DESC, SUM(occurrences) DESC, topic`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count topics: %w", err)
	}
	defer rows.Close()

	var topics []TopicCount
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Documents, &tc.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to scan topic count: %w", err)
		}
		topics = append(topics, tc)
	}
	return topics, rows.Err()
}

// countBy groups documents by a column. Only called with fixed column names.
func (db *DB) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) FROM documents WHERE %[1]s IS NOT NULL GROUP BY %[1]s
	`, column))
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

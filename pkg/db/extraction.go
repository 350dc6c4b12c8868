package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
)

// ErrModeConflict is returned when an extraction disagrees with the mode
// already recorded for the same document version.
var ErrModeConflict = errors.New("extraction mode already recorded for this document version")

// Extraction is everything produced by processing one document.
type Extraction struct {
	Mode          models.ExtractionMode
	Pages         []models.Page
	Tags          []models.TagAssignment
	TaxonomyHash  string
	PDFTitle      string
	PDFAuthor     string
	OCRConfidence float64
}

// SaveExtraction stores pages and tags and marks the document processed, all
// in one transaction. A failure leaves the previous state untouched.
func (db *DB) SaveExtraction(ctx context.Context, id int64, ext Extraction) error {
	if !ext.Mode.Known() {
		return fmt.Errorf("cannot save extraction with mode %q", ext.Mode)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT extraction_mode FROM documents WHERE document_id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read extraction mode: %w", err)
	}
	if stored := models.ExtractionMode(current); stored.Known() && stored != ext.Mode {
		return fmt.Errorf("document %d is %s, got %s: %w", id, stored, ext.Mode, ErrModeConflict)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET extraction_mode = ?, page_count = ?, status = 'processed',
		    failure_reason = NULL, failure_message = NULL, attempts = attempts + 1,
		    taxonomy_hash = ?, pdf_title = ?, pdf_author = ?, ocr_confidence = ?,
		    processed_at = ?, updated_at = ?
		WHERE document_id = ?
	`, string(ext.Mode), len(ext.Pages), NewNullString(ext.TaxonomyHash),
		NewNullString(ext.PDFTitle), NewNullString(ext.PDFAuthor), NewNullFloat64(ext.OCRConfidence),
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear pages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (document_id, page_number, text, source, confidence, language, char_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range ext.Pages {
		_, err := stmt.ExecContext(ctx, id, p.Number, p.Text, string(p.Source),
			NewNullFloat64(p.Confidence), NewNullString(p.Language), p.CharCount)
		if err != nil {
			return fmt.Errorf("failed to insert page %d: %w", p.Number, err)
		}
	}

	if err := replaceTags(ctx, tx, id, ext.Tags, ext.TaxonomyHash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit extraction: %w", err)
	}
	return nil
}

// ReplaceTags swaps the document's tag assignments for tags and records the
// taxonomy fingerprint they were computed with.
func (db *DB) ReplaceTags(ctx context.Context, id int64, tags []models.TagAssignment, fingerprint string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE documents SET taxonomy_hash = ?, updated_at = ? WHERE document_id = ?
	`, NewNullString(fingerprint), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update taxonomy hash: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err := replaceTags(ctx, tx, id, tags, fingerprint); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tags: %w", err)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, id int64, tags []models.TagAssignment, fingerprint string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM tag_assignments WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for _, tag := range tags {
		pages, err := json.Marshal(nonNilInts(tag.Pages))
		if err != nil {
			return fmt.Errorf("failed to encode pages for %s: %w", tag.Topic, err)
		}
		matches, err := json.Marshal(tag.Matches)
		if err != nil {
			return fmt.Errorf("failed to encode matches for %s: %w", tag.Topic, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tag_assignments (document_id, topic, occurrences, pages, matches, taxonomy_hash)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, tag.Topic, tag.Occurrences, string(pages), string(matches), fingerprint)
		if err != nil {
			return fmt.Errorf("failed to insert tag %s: %w", tag.Topic, err)
		}
	}
	return nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

// GetPages returns a document's pages in page order.
func (db *DB) GetPages(ctx context.Context, id int64) ([]models.Page, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT page_number, text, source, confidence, language, char_count
		FROM pages
		WHERE document_id = ?
		ORDER BY page_number
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var (
			p          models.Page
			source     string
			confidence sql.NullFloat64
			language   sql.NullString
		)
		if err := rows.Scan(&p.Number, &p.Text, &source, &confidence, &language, &p.CharCount); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Source = models.PageSource(source)
		p.Confidence = confidence.Float64
		p.Language = language.String
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetTags returns a document's tag assignments sorted by topic.
func (db *DB) GetTags(ctx context.Context, id int64) ([]models.TagAssignment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT topic, occurrences, pages, matches
		FROM tag_assignments
		WHERE document_id = ?
		ORDER BY topic
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []models.TagAssignment
	for rows.Next() {
		var (
			tag            models.TagAssignment
			pages, matches string
		)
		if err := rows.Scan(&tag.Topic, &tag.Occurrences, &pages, &matches); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		if err := json.Unmarshal([]byte(pages), &tag.Pages); err != nil {
			return nil, fmt.Errorf("failed to decode pages for %s: %w", tag.Topic, err)
		}
		if err := json.Unmarshal([]byte(matches), &tag.Matches); err != nil {
			return nil, fmt.Errorf("failed to decode matches for %s: %w", tag.Topic, err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

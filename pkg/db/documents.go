package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
)

const documentColumns = `
	document_id, url, title, doc_type, file_path, content_hash, file_size, page_count,
	extraction_mode, status, failure_reason, failure_message, attempts,
	taxonomy_hash, pdf_title, pdf_author, ocr_confidence,
	created_at, updated_at, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc                                     models.Document
		title, path, hash, reason, message, tax sql.NullString
		pdfTitle, pdfAuthor                     sql.NullString
		confidence                              sql.NullFloat64
		mode, status, docType                   string
		createdAt, updatedAt, processedAt       sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.URL, &title, &docType, &path, &hash, &doc.FileSize, &doc.PageCount,
		&mode, &status, &reason, &message, &doc.Attempts,
		&tax, &pdfTitle, &pdfAuthor, &confidence,
		&createdAt, &updatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Title = title.String
	doc.Type = models.DocumentType(docType)
	doc.Path = path.String
	doc.ContentHash = hash.String
	if doc.Mode, err = models.ParseExtractionMode(mode); err != nil {
		return nil, err
	}
	doc.Status = models.Status(status)
	doc.FailureReason = reason.String
	doc.FailureMessage = message.String
	doc.TaxonomyHash = tax.String
	doc.PDFTitle = pdfTitle.String
	doc.PDFAuthor = pdfAuthor.String
	doc.OCRConfidence = confidence.Float64
	doc.CreatedAt = createdAt.Time
	doc.UpdatedAt = updatedAt.Time
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	return &doc, nil
}

// UpsertDocument registers a downloaded document by URL. If the URL is known
// and the content hash is unchanged only descriptive fields are updated.
// A different hash is a new version: mode, status, pages and tags are reset.
// Returns the document ID and whether a new version was recorded.
func (db *DB) UpsertDocument(ctx context.Context, doc *models.Document) (int64, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var (
		id      int64
		oldHash sql.NullString
	)
	err = tx.QueryRowContext(ctx, "SELECT document_id, content_hash FROM documents WHERE url = ?", doc.URL).Scan(&id, &oldHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, `
			INSERT INTO documents (url, title, doc_type, file_path, content_hash, file_size, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.URL, NewNullString(doc.Title), string(doc.Type), NewNullString(doc.Path),
			NewNullString(doc.ContentHash), doc.FileSize, now, now)
		if err != nil {
			return 0, false, fmt.Errorf("failed to insert document: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("failed to get document ID: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("failed to commit document: %w", err)
		}
		return id, true, nil

	case err != nil:
		return 0, false, fmt.Errorf("failed to check existing document: %w", err)
	}

	if oldHash.String == doc.ContentHash {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET title = COALESCE(?, title), doc_type = ?, file_path = COALESCE(?, file_path), updated_at = ?
			WHERE document_id = ?
		`, NewNullString(doc.Title), string(doc.Type), NewNullString(doc.Path), now, id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to update document: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("failed to commit document: %w", err)
		}
		return id, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET title = COALESCE(?, title), doc_type = ?, file_path = ?, content_hash = ?, file_size = ?,
		    page_count = 0, extraction_mode = 'unknown', status = 'unprocessed',
		    failure_reason = NULL, failure_message = NULL, attempts = 0,
		    taxonomy_hash = NULL, pdf_title = NULL, pdf_author = NULL, ocr_confidence = NULL,
		    processed_at = NULL, updated_at = ?
		WHERE document_id = ?
	`, NewNullString(doc.Title), string(doc.Type), NewNullString(doc.Path),
		NewNullString(doc.ContentHash), doc.FileSize, now, id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record new document version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE document_id = ?", id); err != nil {
		return 0, false, fmt.Errorf("failed to clear pages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM tag_assignments WHERE document_id = ?", id); err != nil {
		return 0, false, fmt.Errorf("failed to clear tags: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit document: %w", err)
	}
	return id, true, nil
}

// GetDocument loads one document by ID.
func (db *DB) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE document_id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetDocumentByURL loads one document by its source URL.
func (db *DB) GetDocumentByURL(ctx context.Context, url string) (*models.Document, error) {
	row := db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE url = ?", url)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocumentsByStatus returns documents in the given status, oldest first.
// limit <= 0 returns all of them.
func (db *DB) ListDocumentsByStatus(ctx context.Context, status models.Status, limit int) ([]models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE status = ? ORDER BY document_id"
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return db.queryDocuments(ctx, query, args...)
}

// ListStaleTagged returns processed documents whose tags were computed with a
// taxonomy other than fingerprint. With all set every processed document is
// returned.
func (db *DB) ListStaleTagged(ctx context.Context, fingerprint string, all bool) ([]models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE status = 'processed'"
	var args []any
	if !all {
		query += " AND (taxonomy_hash IS NULL OR taxonomy_hash != ?)"
		args = append(args, fingerprint)
	}
	query += " ORDER BY document_id"
	return db.queryDocuments(ctx, query, args...)
}

func (db *DB) queryDocuments(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// MarkUnprocessed records a retryable failure. The document stays eligible
// for the next run.
func (db *DB) MarkUnprocessed(ctx context.Context, id int64, reason, message string) error {
	return db.markStatus(ctx, id, models.StatusUnprocessed, reason, message)
}

// MarkFailed records a permanent failure for the current document version.
func (db *DB) MarkFailed(ctx context.Context, id int64, reason, message string) error {
	return db.markStatus(ctx, id, models.StatusFailed, reason, message)
}

// ResetFailed moves failed documents that have a local file back to
// unprocessed and returns how many were moved. Failed downloads stay failed
// until the next scrape fetches them.
func (db *DB) ResetFailed(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE documents SET status = 'unprocessed', updated_at = ?
		WHERE status = 'failed' AND file_path IS NOT NULL AND file_path != ''
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed documents: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) markStatus(ctx context.Context, id int64, status models.Status, reason, message string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE documents
		SET status = ?, failure_reason = ?, failure_message = ?, attempts = attempts + 1, updated_at = ?
		WHERE document_id = ?
	`, string(status), NewNullString(reason), NewNullString(message), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark document %d %s: %w", id, status, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
)

const meetingDateFormat = "2006-01-02"

// UpsertMeeting stores the table row a meetings document was listed with.
// A later listing of the same document replaces the row.
func (db *DB) UpsertMeeting(ctx context.Context, m *models.Meeting) error {
	var date sql.NullString
	if m.Date != nil {
		date = NewNullString(m.Date.Format(meetingDateFormat))
	}
	year := sql.NullInt64{Int64: int64(m.Year), Valid: m.Year > 0}
	_, err := db.ExecContext(ctx, `
		INSERT INTO meeting_minutes (document_id, sr_no, meeting_date_text, meeting_date, year, source_page, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			sr_no = excluded.sr_no,
			meeting_date_text = excluded.meeting_date_text,
			meeting_date = excluded.meeting_date,
			year = excluded.year,
			source_page = excluded.source_page,
			updated_at = excluded.updated_at
	`, m.DocumentID, NewNullString(m.SrNo), m.DateText, date, year, NewNullString(m.SourcePage), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store meeting for document %d: %w", m.DocumentID, err)
	}
	return nil
}

// GetMeeting returns the meeting row of a document, or ErrNotFound.
func (db *DB) GetMeeting(ctx context.Context, documentID int64) (*models.Meeting, error) {
	var (
		m                  models.Meeting
		srNo, date, source sql.NullString
		year               sql.NullInt64
	)
	err := db.QueryRowContext(ctx, `
		SELECT document_id, sr_no, meeting_date_text, meeting_date, year, source_page
		FROM meeting_minutes WHERE document_id = ?
	`, documentID).Scan(&m.DocumentID, &srNo, &m.DateText, &date, &year, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	m.SrNo = srNo.String
	m.Year = int(year.Int64)
	m.SourcePage = source.String
	if date.Valid {
		t, err := time.Parse(meetingDateFormat, date.String)
		if err != nil {
			return nil, fmt.Errorf("invalid meeting date %q: %w", date.String, err)
		}
		m.Date = &t
	}
	return &m, nil
}

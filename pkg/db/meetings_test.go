package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dtnitsch/lda-transparency/models"
	"github.com/google/go-cmp/cmp"
)

func TestUpsertMeeting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	id := insertDocument(t, db, "https://lda.gop.pk/uploads/minutes-14-03-2023.pdf", "hash-1")

	date := time.Date(2023, time.March, 14, 0, 0, 0, 0, time.UTC)
	in := &models.Meeting{
		DocumentID: id,
		SrNo:       "1",
		DateText:   "14 March, 2023",
		Date:       &date,
		Year:       2023,
		SourcePage: "https://lda.gop.pk/website/authority-meeting.php?year=2023",
	}
	if err := db.UpsertMeeting(ctx, in); err != nil {
		t.Fatalf("UpsertMeeting() error = %v", err)
	}
	got, err := db.GetMeeting(ctx, id)
	if err != nil {
		t.Fatalf("GetMeeting() error = %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("GetMeeting() mismatch (-want +got):\n%s", diff)
	}

	// Relisted with an unparseable date: the row is replaced.
	relisted := &models.Meeting{DocumentID: id, SrNo: "7", DateText: "TBA"}
	if err := db.UpsertMeeting(ctx, relisted); err != nil {
		t.Fatalf("second UpsertMeeting() error = %v", err)
	}
	got, err = db.GetMeeting(ctx, id)
	if err != nil {
		t.Fatalf("GetMeeting() error = %v", err)
	}
	if diff := cmp.Diff(relisted, got); diff != "" {
		t.Errorf("relisted meeting mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMeeting_NotFound(t *testing.T) {
	db := setupTestDB(t)
	id := insertDocument(t, db, "https://lda.gop.pk/uploads/regs.pdf", "hash-1")
	if _, err := db.GetMeeting(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeeting() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertMeeting_UnknownDocument(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertMeeting(context.Background(), &models.Meeting{DocumentID: 999}); err == nil {
		t.Error("UpsertMeeting(unknown document) expected foreign key error")
	}
}

package aggregate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestContentRecord_Decode(t *testing.T) {
	raw := `{"id":"ch-1","owner_id":"user-a","word_count":250,"updated_at":"2024-01-10T12:00:00Z"}`

	var rec ContentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ID != "ch-1" || rec.OwnerID != "user-a" || rec.WordCount != 250 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	want := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	if !rec.UpdatedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.UpdatedAt)
	}
}

func TestContentRecord_WrongTypeWordCount(t *testing.T) {
	raw := `{"id":"ch-2","owner_id":"user-a","word_count":"abc","updated_at":"2024-01-10T12:00:00Z"}`

	var rec ContentRecord
	err := json.Unmarshal([]byte(raw), &rec)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.RecordID != "ch-2" {
		t.Fatalf("expected record id ch-2, got %q", verr.RecordID)
	}
	if verr.Field != "word_count" {
		t.Fatalf("expected field word_count, got %q", verr.Field)
	}
}

func TestContentRecord_MissingWordCountIsZero(t *testing.T) {
	raw := `{"id":"ch-3","owner_id":"user-a","updated_at":"2024-01-10T12:00:00Z"}`

	var rec ContentRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.WordCount != 0 {
		t.Fatalf("expected word count 0, got %d", rec.WordCount)
	}
}

func TestContentRecord_UnparseableTimestamp(t *testing.T) {
	raw := `{"id":"ch-4","owner_id":"user-a","word_count":10,"updated_at":"last tuesday"}`

	var rec ContentRecord
	err := json.Unmarshal([]byte(raw), &rec)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != "updated_at" {
		t.Fatalf("expected field updated_at, got %q", verr.Field)
	}
}

func TestProgressRecord_NullChapter(t *testing.T) {
	raw := `{"user_id":"user-a","book_id":"b1","chapter_id":null,"scroll_position":0.5,"updated_at":"2024-01-10T12:00:00Z"}`

	var rec ProgressRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.ChapterID != nil {
		t.Fatalf("expected nil chapter id, got %v", *rec.ChapterID)
	}
	if rec.ScrollPosition != 0.5 {
		t.Fatalf("expected scroll 0.5, got %v", rec.ScrollPosition)
	}
}

func TestProgressRecord_WrongTypeScroll(t *testing.T) {
	raw := `{"user_id":"user-a","book_id":"b1","chapter_id":"c1","scroll_position":"half","updated_at":"2024-01-10T12:00:00Z"}`

	var rec ProgressRecord
	err := json.Unmarshal([]byte(raw), &rec)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != "scroll_position" {
		t.Fatalf("expected field scroll_position, got %q", verr.Field)
	}
}

package aggregate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentRecord is one unit of published writing (a chapter) attributed
// to an owner. Inputs arrive as store rows or as raw JSON events; the
// JSON path type-checks every field.
type ContentRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	WordCount int       `json:"word_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressRecord marks the last chapter a user viewed in a book and how
// far through it they scrolled. ChapterID is nil when no concrete
// position was ever recorded.
type ProgressRecord struct {
	UserID         string    `json:"user_id"`
	BookID         string    `json:"book_id"`
	ChapterID      *string   `json:"chapter_id"`
	ScrollPosition float64   `json:"scroll_position"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ValidationError reports an input record whose field has the wrong type
// or an unparseable timestamp. Numeric range problems are normalized
// silently and never produce this error.
type ValidationError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	id := e.RecordID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("invalid record %s: field %q: %s", id, e.Field, e.Reason)
}

type rawContentRecord struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	WordCount json.RawMessage `json:"word_count"`
	UpdatedAt json.RawMessage `json:"updated_at"`
}

// UnmarshalJSON type-checks word_count and updated_at instead of letting
// encoding/json produce a positional error. A missing word_count is 0;
// a word_count of the wrong type is a *ValidationError.
func (r *ContentRecord) UnmarshalJSON(data []byte) error {
	var raw rawContentRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ContentRecord{ID: raw.ID, OwnerID: raw.OwnerID}

	if !isJSONNull(raw.WordCount) {
		var wc int
		if err := json.Unmarshal(raw.WordCount, &wc); err != nil {
			return &ValidationError{RecordID: raw.ID, Field: "word_count", Reason: "not a number"}
		}
		out.WordCount = wc
	}

	if isJSONNull(raw.UpdatedAt) {
		return &ValidationError{RecordID: raw.ID, Field: "updated_at", Reason: "missing"}
	}
	ts, verr := parseTimestamp(raw.ID, "updated_at", raw.UpdatedAt)
	if verr != nil {
		return verr
	}
	out.UpdatedAt = ts

	*r = out
	return nil
}

type rawProgressRecord struct {
	UserID         string          `json:"user_id"`
	BookID         string          `json:"book_id"`
	ChapterID      *string         `json:"chapter_id"`
	ScrollPosition json.RawMessage `json:"scroll_position"`
	UpdatedAt      json.RawMessage `json:"updated_at"`
}

// UnmarshalJSON applies the same type checks to progress rows. The scroll
// position is range-normalized later by the aggregator, not here.
func (r *ProgressRecord) UnmarshalJSON(data []byte) error {
	var raw rawProgressRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ProgressRecord{UserID: raw.UserID, BookID: raw.BookID, ChapterID: raw.ChapterID}

	if !isJSONNull(raw.ScrollPosition) {
		var sp float64
		if err := json.Unmarshal(raw.ScrollPosition, &sp); err != nil {
			return &ValidationError{RecordID: raw.BookID, Field: "scroll_position", Reason: "not a number"}
		}
		out.ScrollPosition = sp
	}

	if isJSONNull(raw.UpdatedAt) {
		return &ValidationError{RecordID: raw.BookID, Field: "updated_at", Reason: "missing"}
	}
	ts, verr := parseTimestamp(raw.BookID, "updated_at", raw.UpdatedAt)
	if verr != nil {
		return verr
	}
	out.UpdatedAt = ts

	*r = out
	return nil
}

func parseTimestamp(recordID, field string, raw json.RawMessage) (time.Time, *ValidationError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, &ValidationError{RecordID: recordID, Field: field, Reason: "not a string"}
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, &ValidationError{RecordID: recordID, Field: field, Reason: "unparseable timestamp"}
	}
	return ts, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

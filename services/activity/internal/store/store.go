package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// ProgressRecord is the internal representation of per-book reading progress.
// The model keeps a single live position per (user, book) pair.
type ProgressRecord struct {
	UserID         uuid.UUID
	BookID         uuid.UUID
	ChapterID      *uuid.UUID
	ScrollPosition float64
	ClientTsMs     int64
	UpdatedAt      time.Time
}

// ProgressCursor is the decoded form of the opaque pagination cursor.
type ProgressCursor struct {
	UpdatedAt time.Time
	BookID    uuid.UUID
}

// ProgressRepository defines persistence operations for reading progress.
type ProgressRepository interface {
	// Upsert inserts or updates progress, ignoring stale writes (client_ts_ms <= existing).
	// Returns the current (possibly unchanged) record.
	Upsert(ctx context.Context, r ProgressRecord) (ProgressRecord, error)
	// List returns up to limit records ordered by updated_at DESC.
	// cursor, if non-nil, acts as an exclusive lower bound for keyset pagination.
	List(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error)
}

// ContentRecord is a published chapter row reduced to what the activity
// aggregation needs.
type ContentRecord struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	WordCount int
	UpdatedAt time.Time
}

// ContentRepository reads published content history for one author.
type ContentRepository interface {
	// ListByOwner returns records with updated_at >= since, newest first,
	// capped at limit. The window is caller-controlled so aggregations can
	// run over a day or a year without a magic constant in the store.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, since time.Time, limit int) ([]ContentRecord, error)
}

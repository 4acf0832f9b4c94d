package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProgressRepository is the production Postgres-backed implementation.
type PostgresProgressRepository struct {
	db *pgxpool.Pool
}

func NewPostgresProgressRepository(db *pgxpool.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: db}
}

func (r *PostgresProgressRepository) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	q := `
INSERT INTO reading_progress (user_id, book_id, chapter_id, scroll_position, client_ts_ms, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, book_id)
DO UPDATE SET
  chapter_id      = EXCLUDED.chapter_id,
  scroll_position = EXCLUDED.scroll_position,
  client_ts_ms    = EXCLUDED.client_ts_ms,
  updated_at      = EXCLUDED.updated_at
WHERE reading_progress.client_ts_ms <= EXCLUDED.client_ts_ms
RETURNING chapter_id, scroll_position, client_ts_ms, updated_at`

	var out ProgressRecord
	out.UserID = rec.UserID
	out.BookID = rec.BookID

	err := r.db.QueryRow(ctx, q,
		rec.UserID, rec.BookID, rec.ChapterID, rec.ScrollPosition,
		rec.ClientTsMs, time.Now().UTC(),
	).Scan(&out.ChapterID, &out.ScrollPosition, &out.ClientTsMs, &out.UpdatedAt)

	if err != nil {
		// WHERE clause blocked the update; fetch current state instead.
		if errors.Is(err, pgx.ErrNoRows) {
			return r.fetchOne(ctx, rec.UserID, rec.BookID)
		}
		return ProgressRecord{}, fmt.Errorf("upsert reading progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) fetchOne(ctx context.Context, userID, bookID uuid.UUID) (ProgressRecord, error) {
	q := `SELECT chapter_id, scroll_position, client_ts_ms, updated_at
	      FROM reading_progress WHERE user_id=$1 AND book_id=$2`
	var out ProgressRecord
	out.UserID = userID
	out.BookID = bookID
	err := r.db.QueryRow(ctx, q, userID, bookID).
		Scan(&out.ChapterID, &out.ScrollPosition, &out.ClientTsMs, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressRecord{}, ErrNotFound
		}
		return ProgressRecord{}, fmt.Errorf("fetch reading progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) List(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	q := `SELECT book_id, chapter_id, scroll_position, client_ts_ms, updated_at
	      FROM reading_progress WHERE user_id=$1`
	args := []any{userID}

	if cursor != nil {
		q += " AND (updated_at, book_id) < (to_timestamp($2 / 1000.0), $3)"
		args = append(args, cursor.UpdatedAt.UnixMilli(), cursor.BookID)
	}
	q += " ORDER BY updated_at DESC, book_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reading progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var rec ProgressRecord
		rec.UserID = userID
		if err := rows.Scan(&rec.BookID, &rec.ChapterID, &rec.ScrollPosition, &rec.ClientTsMs, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reading progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PostgresContentRepository reads published chapter history owned by the
// catalog service; this repository only ever selects.
type PostgresContentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresContentRepository(db *pgxpool.Pool) *PostgresContentRepository {
	return &PostgresContentRepository{db: db}
}

func (r *PostgresContentRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, since time.Time, limit int) ([]ContentRecord, error) {
	q := `SELECT id, user_id, word_count, updated_at
	      FROM chapters
	      WHERE user_id = $1 AND status = 'published' AND updated_at >= $2
	      ORDER BY updated_at DESC
	      LIMIT $3`

	rows, err := r.db.Query(ctx, q, ownerID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list content records: %w", err)
	}
	defer rows.Close()

	var out []ContentRecord
	for rows.Next() {
		var rec ContentRecord
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.WordCount, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

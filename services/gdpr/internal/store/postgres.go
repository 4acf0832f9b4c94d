package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDataRequestStore struct {
	db *pgxpool.Pool
}

func NewPostgresDataRequestStore(db *pgxpool.Pool) *PostgresDataRequestStore {
	return &PostgresDataRequestStore{db: db}
}

const dataRequestColumns = `id::text, user_id::text, request_type, email, status, requested_at, completed_at, expires_at, coalesce(ip_address, ''), coalesce(user_agent, '')`

func scanDataRequest(row pgx.Row) (DataRequest, error) {
	var r DataRequest
	err := row.Scan(&r.ID, &r.UserID, &r.RequestType, &r.Email, &r.Status,
		&r.RequestedAt, &r.CompletedAt, &r.ExpiresAt, &r.IPAddress, &r.UserAgent)
	return r, err
}

func (s *PostgresDataRequestStore) Create(ctx context.Context, req DataRequest) (DataRequest, error) {
	q := `
INSERT INTO data_requests (id, user_id, request_type, email, status, requested_at, expires_at, ip_address, user_agent)
VALUES ($1, $2::uuid, $3, $4, 'pending', $5, $6, nullif($7, ''), nullif($8, ''))
RETURNING ` + dataRequestColumns
	return scanDataRequest(s.db.QueryRow(ctx, q,
		uuid.New(), req.UserID, req.RequestType, req.Email,
		req.RequestedAt, req.ExpiresAt, req.IPAddress, req.UserAgent))
}

func (s *PostgresDataRequestStore) ListByUser(ctx context.Context, userID string) ([]DataRequest, error) {
	q := `SELECT ` + dataRequestColumns + ` FROM data_requests WHERE user_id = $1::uuid ORDER BY requested_at DESC`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DataRequest
	for rows.Next() {
		r, err := scanDataRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresDataRequestStore) Complete(ctx context.Context, id string, now time.Time) error {
	q := `UPDATE data_requests SET status='completed', completed_at=$2 WHERE id=$1::uuid AND status='pending'`
	tag, err := s.db.Exec(ctx, q, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDataRequestStore) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	q := `UPDATE data_requests SET status='expired' WHERE status='pending' AND expires_at < $1`
	tag, err := s.db.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type PostgresDeletionRequestStore struct {
	db *pgxpool.Pool
}

func NewPostgresDeletionRequestStore(db *pgxpool.Pool) *PostgresDeletionRequestStore {
	return &PostgresDeletionRequestStore{db: db}
}

const deletionRequestColumns = `id::text, user_id::text, email, status, requested_at, completed_at, scheduled_deletion_at, coalesce(ip_address, ''), coalesce(user_agent, '')`

func scanDeletionRequest(row pgx.Row) (DeletionRequest, error) {
	var r DeletionRequest
	err := row.Scan(&r.ID, &r.UserID, &r.Email, &r.Status,
		&r.RequestedAt, &r.CompletedAt, &r.ScheduledDeletionAt, &r.IPAddress, &r.UserAgent)
	return r, err
}

func (s *PostgresDeletionRequestStore) Create(ctx context.Context, req DeletionRequest) (DeletionRequest, error) {
	// The insert races with a concurrent request from the same user; the
	// partial unique index on (user_id) WHERE status='pending' settles it.
	q := `
INSERT INTO deletion_requests (id, user_id, email, status, requested_at, scheduled_deletion_at, ip_address, user_agent)
SELECT $1, $2::uuid, $3, 'pending', $4, $5, nullif($6, ''), nullif($7, '')
WHERE NOT EXISTS (
	SELECT 1 FROM deletion_requests WHERE user_id = $2::uuid AND status = 'pending'
)
RETURNING ` + deletionRequestColumns
	r, err := scanDeletionRequest(s.db.QueryRow(ctx, q,
		uuid.New(), req.UserID, req.Email, req.RequestedAt, req.ScheduledDeletionAt,
		req.IPAddress, req.UserAgent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeletionRequest{}, ErrAlreadyPending
		}
		return DeletionRequest{}, err
	}
	return r, nil
}

func (s *PostgresDeletionRequestStore) GetPending(ctx context.Context, userID string) (DeletionRequest, error) {
	q := `SELECT ` + deletionRequestColumns + ` FROM deletion_requests WHERE user_id = $1::uuid AND status = 'pending' LIMIT 1`
	r, err := scanDeletionRequest(s.db.QueryRow(ctx, q, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeletionRequest{}, ErrNotFound
		}
		return DeletionRequest{}, err
	}
	return r, nil
}

func (s *PostgresDeletionRequestStore) Cancel(ctx context.Context, userID string, now time.Time) error {
	q := `UPDATE deletion_requests SET status='cancelled', completed_at=$2 WHERE user_id=$1::uuid AND status='pending'`
	tag, err := s.db.Exec(ctx, q, userID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDeletionRequestStore) Due(ctx context.Context, now time.Time, limit int) ([]DeletionRequest, error) {
	q := `
SELECT ` + deletionRequestColumns + `
FROM deletion_requests
WHERE status = 'pending' AND scheduled_deletion_at <= $1
ORDER BY scheduled_deletion_at
LIMIT $2`
	rows, err := s.db.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeletionRequest
	for rows.Next() {
		r, err := scanDeletionRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresDeletionRequestStore) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	q := `UPDATE deletion_requests SET status='completed', completed_at=$2 WHERE id=$1::uuid`
	tag, err := s.db.Exec(ctx, q, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresDeletionRequestStore) MarkFailed(ctx context.Context, id string) error {
	q := `UPDATE deletion_requests SET status='failed' WHERE id=$1::uuid`
	tag, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LikeSummary is the aggregate like state for a book.
type LikeSummary struct {
	BookID string `json:"book_id"`
	Total  int    `json:"total"`
	Liked  bool   `json:"liked"`
}

// LikeStore defines persistence for book likes.
type LikeStore interface {
	Like(ctx context.Context, bookID, userID string) error
	Unlike(ctx context.Context, bookID, userID string) error
	Summary(ctx context.Context, bookID, userID string) (LikeSummary, error)
}

// InMemoryLikeStore is a development-only implementation.
type InMemoryLikeStore struct {
	mu    sync.RWMutex
	likes map[string]map[string]struct{} // bookID -> userID
}

func NewInMemoryLikeStore() *InMemoryLikeStore {
	return &InMemoryLikeStore{likes: make(map[string]map[string]struct{})}
}

func (s *InMemoryLikeStore) Like(_ context.Context, bookID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likes[bookID] == nil {
		s.likes[bookID] = make(map[string]struct{})
	}
	s.likes[bookID][userID] = struct{}{}
	return nil
}

func (s *InMemoryLikeStore) Unlike(_ context.Context, bookID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.likes[bookID], userID)
	return nil
}

func (s *InMemoryLikeStore) Summary(_ context.Context, bookID, userID string) (LikeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := s.likes[bookID]
	_, liked := users[userID]
	return LikeSummary{BookID: bookID, Total: len(users), Liked: liked}, nil
}

// PostgresLikeStore persists likes in Postgres. An insert or delete also
// maintains the denormalized like_count on books.
type PostgresLikeStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLikeStore(pool *pgxpool.Pool) *PostgresLikeStore {
	return &PostgresLikeStore{pool: pool}
}

func (s *PostgresLikeStore) Like(ctx context.Context, bookID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
INSERT INTO book_likes (book_id, user_id)
VALUES ($1, $2)
ON CONFLICT (book_id, user_id) DO NOTHING`, bookID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE books SET like_count = like_count + 1 WHERE id = $1`, bookID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresLikeStore) Unlike(ctx context.Context, bookID, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM book_likes WHERE book_id = $1 AND user_id = $2`, bookID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE books SET like_count = greatest(like_count - 1, 0) WHERE id = $1`, bookID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresLikeStore) Summary(ctx context.Context, bookID, userID string) (LikeSummary, error) {
	out := LikeSummary{BookID: bookID}
	err := s.pool.QueryRow(ctx, `
SELECT count(*),
       coalesce(bool_or(user_id = $2), false)
FROM book_likes
WHERE book_id = $1`, bookID, userID).Scan(&out.Total, &out.Liked)
	if err != nil {
		return LikeSummary{BookID: bookID}, err
	}
	return out, nil
}

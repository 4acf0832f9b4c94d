package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSelfFollow = errors.New("cannot follow yourself")

// Follow is a reader following an author.
type Follow struct {
	FollowerID string    `json:"follower_id"`
	FolloweeID string    `json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FollowStore defines persistence for the follow graph.
type FollowStore interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	// Following lists the authors a reader follows, newest first.
	Following(ctx context.Context, followerID string) ([]string, error)
	FollowerCount(ctx context.Context, followeeID string) (int, error)
}

// InMemoryFollowStore is a development-only implementation.
type InMemoryFollowStore struct {
	mu      sync.RWMutex
	follows map[string]map[string]time.Time // followerID -> followeeID -> since
}

func NewInMemoryFollowStore() *InMemoryFollowStore {
	return &InMemoryFollowStore{follows: make(map[string]map[string]time.Time)}
}

func (s *InMemoryFollowStore) Follow(_ context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]time.Time)
	}
	if _, ok := s.follows[followerID][followeeID]; !ok {
		s.follows[followerID][followeeID] = time.Now().UTC()
	}
	return nil
}

func (s *InMemoryFollowStore) Unfollow(_ context.Context, followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.follows[followerID], followeeID)
	return nil
}

func (s *InMemoryFollowStore) IsFollowing(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.follows[followerID][followeeID]
	return ok, nil
}

func (s *InMemoryFollowStore) Following(_ context.Context, followerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		id    string
		since time.Time
	}
	var entries []entry
	for id, since := range s.follows[followerID] {
		entries = append(entries, entry{id, since})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].since.After(entries[j].since) })

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out, nil
}

func (s *InMemoryFollowStore) FollowerCount(_ context.Context, followeeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, followees := range s.follows {
		if _, ok := followees[followeeID]; ok {
			n++
		}
	}
	return n, nil
}

// PostgresFollowStore persists the follow graph in Postgres.
type PostgresFollowStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFollowStore(pool *pgxpool.Pool) *PostgresFollowStore {
	return &PostgresFollowStore{pool: pool}
}

func (s *PostgresFollowStore) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO follows (follower_id, followee_id)
VALUES ($1, $2)
ON CONFLICT (follower_id, followee_id) DO NOTHING`, followerID, followeeID)
	return err
}

func (s *PostgresFollowStore) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	return err
}

func (s *PostgresFollowStore) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)`,
		followerID, followeeID).Scan(&ok)
	return ok, err
}

func (s *PostgresFollowStore) Following(ctx context.Context, followerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY created_at DESC`, followerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresFollowStore) FollowerCount(ctx context.Context, followeeID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM follows WHERE followee_id = $1`, followeeID).Scan(&n)
	return n, err
}

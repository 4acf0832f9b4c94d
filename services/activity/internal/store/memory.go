package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryProgressRepository is a development and test implementation.
type InMemoryProgressRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]map[uuid.UUID]ProgressRecord // user_id -> book_id -> record
}

func NewInMemoryProgressRepository() *InMemoryProgressRepository {
	return &InMemoryProgressRepository{records: make(map[uuid.UUID]map[uuid.UUID]ProgressRecord)}
}

func (s *InMemoryProgressRepository) Upsert(_ context.Context, rec ProgressRecord) (ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[rec.UserID] == nil {
		s.records[rec.UserID] = make(map[uuid.UUID]ProgressRecord)
	}
	if existing, ok := s.records[rec.UserID][rec.BookID]; ok && rec.ClientTsMs < existing.ClientTsMs {
		return existing, nil
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.UserID][rec.BookID] = rec
	return rec, nil
}

func (s *InMemoryProgressRepository) List(_ context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ProgressRecord
	for _, rec := range s.records[userID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].BookID.String() > out[j].BookID.String()
	})

	if cursor != nil {
		start := 0
		for i, rec := range out {
			if rec.UpdatedAt.Before(cursor.UpdatedAt) ||
				(rec.UpdatedAt.Equal(cursor.UpdatedAt) && rec.BookID.String() < cursor.BookID.String()) {
				start = i
				break
			}
			start = i + 1
		}
		out = out[start:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SeedUpdatedAt overwrites the updated_at of a stored record. Tests use it
// to build deterministic histories.
func (s *InMemoryProgressRepository) SeedUpdatedAt(userID, bookID uuid.UUID, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID][bookID]; ok {
		rec.UpdatedAt = ts
		s.records[userID][bookID] = rec
	}
}

// InMemoryContentRepository serves seeded content rows for tests and dev.
type InMemoryContentRepository struct {
	mu      sync.RWMutex
	records []ContentRecord
}

func NewInMemoryContentRepository() *InMemoryContentRepository {
	return &InMemoryContentRepository{}
}

func (s *InMemoryContentRepository) Add(rec ContentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *InMemoryContentRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, since time.Time, limit int) ([]ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ContentRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID && !rec.UpdatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

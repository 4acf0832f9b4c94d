package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryDataRequestStore backs tests and local development.
type InMemoryDataRequestStore struct {
	mu       sync.RWMutex
	requests map[string]DataRequest
}

func NewInMemoryDataRequestStore() *InMemoryDataRequestStore {
	return &InMemoryDataRequestStore{requests: make(map[string]DataRequest)}
}

func (s *InMemoryDataRequestStore) Create(_ context.Context, req DataRequest) (DataRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.ID = uuid.NewString()
	req.Status = DataPending
	s.requests[req.ID] = req
	return req, nil
}

func (s *InMemoryDataRequestStore) ListByUser(_ context.Context, userID string) ([]DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DataRequest
	for _, r := range s.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (s *InMemoryDataRequestStore) Complete(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Status != DataPending {
		return ErrNotFound
	}
	r.Status = DataCompleted
	r.CompletedAt = &now
	s.requests[id] = r
	return nil
}

func (s *InMemoryDataRequestStore) ExpireStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.requests {
		if r.Status == DataPending && now.After(r.ExpiresAt) {
			r.Status = DataExpired
			s.requests[id] = r
			n++
		}
	}
	return n, nil
}

// InMemoryDeletionRequestStore backs tests and local development.
type InMemoryDeletionRequestStore struct {
	mu       sync.RWMutex
	requests map[string]DeletionRequest
}

func NewInMemoryDeletionRequestStore() *InMemoryDeletionRequestStore {
	return &InMemoryDeletionRequestStore{requests: make(map[string]DeletionRequest)}
}

func (s *InMemoryDeletionRequestStore) Create(_ context.Context, req DeletionRequest) (DeletionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.UserID == req.UserID && r.Status == DeletionPending {
			return DeletionRequest{}, ErrAlreadyPending
		}
	}
	req.ID = uuid.NewString()
	req.Status = DeletionPending
	s.requests[req.ID] = req
	return req, nil
}

func (s *InMemoryDeletionRequestStore) GetPending(_ context.Context, userID string) (DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.UserID == userID && r.Status == DeletionPending {
			return r, nil
		}
	}
	return DeletionRequest{}, ErrNotFound
}

func (s *InMemoryDeletionRequestStore) Cancel(_ context.Context, userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.requests {
		if r.UserID == userID && r.Status == DeletionPending {
			r.Status = DeletionCancelled
			s.requests[id] = r
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryDeletionRequestStore) Due(_ context.Context, now time.Time, limit int) ([]DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DeletionRequest
	for _, r := range s.requests {
		if r.Status == DeletionPending && !now.Before(r.ScheduledDeletionAt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDeletionAt.Before(out[j].ScheduledDeletionAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryDeletionRequestStore) MarkCompleted(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = DeletionCompleted
	r.CompletedAt = &now
	s.requests[id] = r
	return nil
}

func (s *InMemoryDeletionRequestStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = DeletionFailed
	s.requests[id] = r
	return nil
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryBookStore is a development and test implementation.
type InMemoryBookStore struct {
	mu     sync.RWMutex
	books  map[string]Book
	Record RecordFunc
}

func NewInMemoryBookStore() *InMemoryBookStore {
	return &InMemoryBookStore{books: make(map[string]Book)}
}

func (s *InMemoryBookStore) record(ctx context.Context, subject string, payload any) error {
	if s.Record == nil {
		return nil
	}
	return s.Record(ctx, nil, subject, payload)
}

func (s *InMemoryBookStore) Create(_ context.Context, b Book) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = uuid.NewString()
	b.Status = BookDraft
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	s.books[b.ID] = b
	return b, nil
}

func (s *InMemoryBookStore) Update(ctx context.Context, b Book) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.books[b.ID]
	if !ok || existing.UserID != b.UserID {
		return Book{}, ErrNotFound
	}
	existing.Title = b.Title
	existing.Description = b.Description
	existing.CoverURL = b.CoverURL
	existing.Genre = b.Genre
	existing.Tags = b.Tags
	existing.Language = b.Language
	existing.UpdatedAt = time.Now().UTC()
	s.books[b.ID] = existing
	if err := s.record(ctx, SubjectBookUpdated, bookEvent{ID: existing.ID, UserID: existing.UserID, Status: existing.Status}); err != nil {
		return Book{}, err
	}
	return existing, nil
}

func (s *InMemoryBookStore) Delete(ctx context.Context, bookID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	delete(s.books, bookID)
	return s.record(ctx, SubjectBookDeleted, bookEvent{ID: bookID, UserID: userID})
}

func (s *InMemoryBookStore) Get(_ context.Context, bookID string) (Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[bookID]
	if !ok {
		return Book{}, ErrNotFound
	}
	return b, nil
}

func (s *InMemoryBookStore) ListByOwner(_ context.Context, userID string) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Book
	for _, b := range s.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryBookStore) ListPublishedByOwners(_ context.Context, ownerIDs []string, limit int) ([]Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	var out []Book
	for _, b := range s.books {
		if _, ok := owners[b.UserID]; ok && b.Status == BookPublished {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryBookStore) SetStatus(ctx context.Context, bookID, userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	s.books[bookID] = b

	subject := SubjectBookUnpublished
	if status == BookPublished {
		subject = SubjectBookPublished
	}
	return s.record(ctx, subject, bookEvent{ID: bookID, UserID: userID, Status: status})
}

// InMemoryChapterStore is a development and test implementation.
type InMemoryChapterStore struct {
	mu       sync.RWMutex
	chapters map[string]Chapter
	Record   RecordFunc
}

func NewInMemoryChapterStore() *InMemoryChapterStore {
	return &InMemoryChapterStore{chapters: make(map[string]Chapter)}
}

func (s *InMemoryChapterStore) record(ctx context.Context, subject string, payload any) error {
	if s.Record == nil {
		return nil
	}
	return s.Record(ctx, nil, subject, payload)
}

func (s *InMemoryChapterStore) Create(_ context.Context, c Chapter) (Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.NewString()
	if c.Status == "" {
		c.Status = ChapterDraft
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.chapters[c.ID] = c
	return c, nil
}

func (s *InMemoryChapterStore) Update(ctx context.Context, c Chapter) (Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.chapters[c.ID]
	if !ok || existing.UserID != c.UserID {
		return Chapter{}, ErrNotFound
	}
	existing.Title = c.Title
	existing.Content = c.Content
	existing.OrderIndex = c.OrderIndex
	existing.Status = c.Status
	existing.PublishAt = c.PublishAt
	existing.WordCount = c.WordCount
	existing.UpdatedAt = time.Now().UTC()
	s.chapters[c.ID] = existing
	if err := s.record(ctx, SubjectChapterUpdated, chapterEvent{ID: existing.ID, BookID: existing.BookID, UserID: existing.UserID}); err != nil {
		return Chapter{}, err
	}
	return existing, nil
}

func (s *InMemoryChapterStore) Delete(ctx context.Context, chapterID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chapters[chapterID]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(s.chapters, chapterID)
	return s.record(ctx, SubjectChapterDeleted, chapterEvent{ID: chapterID, BookID: c.BookID, UserID: userID})
}

func (s *InMemoryChapterStore) Get(_ context.Context, chapterID string) (Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chapters[chapterID]
	if !ok {
		return Chapter{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryChapterStore) ListByBook(_ context.Context, bookID string) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Chapter
	for _, c := range s.chapters {
		if c.BookID == bookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (s *InMemoryChapterStore) ListPublishedByOwners(_ context.Context, ownerIDs []string, limit int) ([]Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make(map[string]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}

	var out []Chapter
	for _, c := range s.chapters {
		if _, ok := owners[c.UserID]; ok && c.Status == ChapterPublished {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryChapterStore) PublishDue(ctx context.Context, now time.Time, limit int) ([]Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Chapter
	for _, c := range s.chapters {
		if c.Status == ChapterDraft && c.PublishAt != nil && !c.PublishAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].PublishAt.Before(*due[j].PublishAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for i, c := range due {
		c.Status = ChapterPublished
		c.PublishAt = nil
		c.UpdatedAt = now.UTC()
		s.chapters[c.ID] = c
		due[i] = c
		if err := s.record(ctx, SubjectChapterPublished, c); err != nil {
			return nil, err
		}
	}
	return due, nil
}

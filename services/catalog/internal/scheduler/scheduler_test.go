package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/virexbooks/services/catalog/internal/store"
)

func TestRunOncePublishesDueChapters(t *testing.T) {
	chapters := store.NewInMemoryChapterStore()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	past := now.Add(-10 * time.Minute)
	future := now.Add(10 * time.Minute)
	due, _ := chapters.Create(ctx, store.Chapter{BookID: "b1", UserID: "u1", PublishAt: &past})
	later, _ := chapters.Create(ctx, store.Chapter{BookID: "b1", UserID: "u1", PublishAt: &future})

	s := New(zap.NewNop(), chapters, nil)
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("published %d, want 1", n)
	}

	got, _ := chapters.Get(ctx, due.ID)
	if got.Status != store.ChapterPublished {
		t.Fatalf("due chapter not published: %+v", got)
	}
	still, _ := chapters.Get(ctx, later.ID)
	if still.Status != store.ChapterDraft {
		t.Fatalf("future chapter published early: %+v", still)
	}
}

func TestRunOnceDrainsBacklogAcrossBatches(t *testing.T) {
	chapters := store.NewInMemoryChapterStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 7; i++ {
		at := now.Add(-time.Duration(i+1) * time.Minute)
		if _, err := chapters.Create(ctx, store.Chapter{BookID: "b1", UserID: "u1", PublishAt: &at}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	s := New(zap.NewNop(), chapters, nil)
	s.BatchSize = 3
	s.now = func() time.Time { return now }

	n, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 7 {
		t.Fatalf("published %d, want 7", n)
	}
}

func TestRunOnceNoWorkIsQuiet(t *testing.T) {
	s := New(zap.NewNop(), store.NewInMemoryChapterStore(), nil)
	n, err := s.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
}

// Package scheduler flips draft chapters to published once their
// publish_at instant has passed.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/services/catalog/internal/store"
)

type Scheduler struct {
	Log          *zap.Logger
	Chapters     store.ChapterStore
	Analytics    *analytics.Publisher
	BatchSize    int
	PollInterval time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

func New(log *zap.Logger, chapters store.ChapterStore, ap *analytics.Publisher) *Scheduler {
	return &Scheduler{
		Log:          log,
		Chapters:     chapters,
		Analytics:    ap,
		BatchSize:    500,
		PollInterval: time.Minute,
		now:          time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.Log.Warn("scheduled publish pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce publishes every due chapter, draining in batches so a large
// backlog clears in a single pass. Returns the number published. The
// durable outbox event per chapter is recorded by the store inside the
// PublishDue transaction.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	total := 0
	for {
		published, err := s.Chapters.PublishDue(ctx, now, s.BatchSize)
		if err != nil {
			return total, err
		}
		for _, c := range published {
			s.Analytics.Publish(analytics.SubjectChapterPublished, "chapter_published", c.UserID, map[string]any{
				"book_id":    c.BookID,
				"chapter_id": c.ID,
				"word_count": c.WordCount,
				"scheduled":  true,
			})
		}
		total += len(published)
		if len(published) < s.BatchSize {
			break
		}
	}
	if total > 0 {
		s.Log.Info("published scheduled chapters", zap.Int("count", total))
	}
	return total, nil
}

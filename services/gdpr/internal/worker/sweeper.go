// Package worker runs the periodic GDPR sweep: expiring stale data
// requests and executing deletion requests whose grace period elapsed.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/virexbooks/services/gdpr/internal/store"
)

// Deleter purges all data belonging to one user.
type Deleter interface {
	Delete(ctx context.Context, userID string) error
}

type Sweeper struct {
	Log          *zap.Logger
	DataRequests store.DataRequestStore
	Deletions    store.DeletionRequestStore
	Deleter      Deleter

	BatchSize    int
	PollInterval time.Duration

	now func() time.Time
}

func NewSweeper(log *zap.Logger, dr store.DataRequestStore, del store.DeletionRequestStore, d Deleter) *Sweeper {
	return &Sweeper{
		Log:          log,
		DataRequests: dr,
		Deletions:    del,
		Deleter:      d,
		BatchSize:    50,
		PollInterval: time.Hour,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.now()

	expired, err := s.DataRequests.ExpireStale(ctx, now)
	if err != nil {
		s.Log.Error("expire stale data requests", zap.Error(err))
	} else if expired > 0 {
		s.Log.Info("expired stale data requests", zap.Int("count", expired))
	}

	due, err := s.Deletions.Due(ctx, now, s.BatchSize)
	if err != nil {
		s.Log.Error("list due deletions", zap.Error(err))
		return
	}
	for _, req := range due {
		if err := s.Deleter.Delete(ctx, req.UserID); err != nil {
			s.Log.Error("purge user data",
				zap.String("request_id", req.ID),
				zap.String("user_id", req.UserID),
				zap.Error(err))
			if err := s.Deletions.MarkFailed(ctx, req.ID); err != nil {
				s.Log.Error("mark deletion failed", zap.String("request_id", req.ID), zap.Error(err))
			}
			continue
		}
		if err := s.Deletions.MarkCompleted(ctx, req.ID, s.now()); err != nil {
			s.Log.Error("mark deletion completed", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		s.Log.Info("account deleted", zap.String("request_id", req.ID), zap.String("user_id", req.UserID))
	}
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/idempotency"
	"github.com/example/virexbooks/services/activity/internal/store"
)

// ProgressEvent is the payload published by the progress handler.
type ProgressEvent struct {
	EventID        string  `json:"event_id"`
	UserID         string  `json:"user_id"`
	BookID         string  `json:"book_id"`
	ChapterID      *string `json:"chapter_id"`
	ScrollPosition float64 `json:"scroll_position"`
	ClientTsMs     int64   `json:"client_ts_ms"`
	CreatedAt      string  `json:"created_at"`
}

// StartProgressConsumer subscribes to activity.progress and applies
// deduplicated upserts through the progress repository. Malformed
// messages are acked and dropped; transient failures are nacked for
// redelivery.
func StartProgressConsumer(ctx context.Context, nc *nats.Conn, progress store.ProgressRepository, dedup idempotency.Store, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("progress consumer: jetstream", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe("activity.progress", "activity_progress")
	if err != nil {
		log.Error("progress consumer: subscribe", zap.Error(err))
		return
	}

	batchSize := envInt("WORKER_BATCH_SIZE", 100)
	batchInterval := envInt("WORKER_BATCH_INTERVAL_MS", 2000)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(batchSize, nats.MaxWait(time.Duration(batchInterval)*time.Millisecond))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			log.Warn("progress consumer: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			if err := handleMessage(ctx, m, progress, dedup, log); err != nil {
				if nakErr := m.Nak(); nakErr != nil {
					log.Warn("progress consumer: nak", zap.Error(nakErr))
				}
				continue
			}
			if err := m.Ack(); err != nil {
				log.Warn("progress consumer: ack", zap.Error(err))
			}
		}
	}
}

func handleMessage(ctx context.Context, m *nats.Msg, progress store.ProgressRepository, dedup idempotency.Store, log *zap.Logger) error {
	var ev ProgressEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		// Poison message; log and drop.
		log.Warn("progress consumer: invalid json", zap.Error(err))
		return nil
	}

	if ev.EventID != "" {
		dup, err := dedup.Check(ctx, ev.EventID)
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}

	rec, err := eventToRecord(ev)
	if err != nil {
		log.Warn("progress consumer: invalid event", zap.String("event_id", ev.EventID), zap.Error(err))
		return nil
	}

	_, err = progress.Upsert(ctx, rec)
	return err
}

func eventToRecord(ev ProgressEvent) (store.ProgressRecord, error) {
	userID, err := uuid.Parse(strings.TrimSpace(ev.UserID))
	if err != nil {
		return store.ProgressRecord{}, errors.New("invalid user_id")
	}
	bookID, err := uuid.Parse(strings.TrimSpace(ev.BookID))
	if err != nil {
		return store.ProgressRecord{}, errors.New("invalid book_id")
	}

	rec := store.ProgressRecord{
		UserID:         userID,
		BookID:         bookID,
		ScrollPosition: ev.ScrollPosition,
		ClientTsMs:     ev.ClientTsMs,
	}
	if rec.ScrollPosition < 0 {
		rec.ScrollPosition = 0
	}
	if rec.ScrollPosition > 1 {
		rec.ScrollPosition = 1
	}
	if ev.ChapterID != nil && strings.TrimSpace(*ev.ChapterID) != "" {
		chID, err := uuid.Parse(strings.TrimSpace(*ev.ChapterID))
		if err != nil {
			return store.ProgressRecord{}, errors.New("invalid chapter_id")
		}
		rec.ChapterID = &chID
	}
	return rec, nil
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

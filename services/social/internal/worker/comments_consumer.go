// Package worker consumes asynchronous comment events from JetStream and
// applies them through the comment store.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/virexbooks/services/social/internal/store"
)

// CommentEvent is the shared payload for social.comments.* subjects.
// Fields are populated per action: create uses BookID/Body, update and
// delete use CommentID, vote uses CommentID/Vote.
type CommentEvent struct {
	EventID   string  `json:"event_id"`
	UserID    string  `json:"user_id"`
	BookID    string  `json:"book_id,omitempty"`
	ChapterID *string `json:"chapter_id,omitempty"`
	CommentID string  `json:"comment_id,omitempty"`
	ParentID  *string `json:"parent_id,omitempty"`
	Body      string  `json:"body,omitempty"`
	Vote      int16   `json:"vote,omitempty"`
}

// Dedup reports whether an event id was already processed, marking it
// otherwise. A nil Dedup disables deduplication.
type Dedup interface {
	Check(ctx context.Context, eventID string) (duplicate bool, err error)
}

// StartCommentsConsumer pull-subscribes to social.comments.* and applies
// each event. Malformed events are acked and dropped; store failures nak
// for redelivery.
func StartCommentsConsumer(ctx context.Context, nc *nats.Conn, cs store.CommentStore, dedup Dedup, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Error("comments consumer: jetstream", zap.Error(err))
		return
	}
	sub, err := js.PullSubscribe("social.comments.*", "social_comments")
	if err != nil {
		log.Error("comments consumer: subscribe", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(100, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			log.Warn("comments consumer: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			if err := handleMessage(ctx, m, cs, dedup, log); err != nil {
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

func handleMessage(ctx context.Context, m *nats.Msg, cs store.CommentStore, dedup Dedup, log *zap.Logger) error {
	var ev CommentEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		log.Warn("comments consumer: dropping malformed event", zap.String("subject", m.Subject), zap.Error(err))
		return nil
	}

	if dedup != nil && ev.EventID != "" {
		duplicate, err := dedup.Check(ctx, ev.EventID)
		if err != nil {
			return err
		}
		if duplicate {
			return nil
		}
	}

	action := strings.TrimPrefix(m.Subject, "social.comments.")
	switch action {
	case "create":
		if ev.BookID == "" || strings.TrimSpace(ev.Body) == "" {
			log.Warn("comments consumer: dropping invalid create", zap.String("event_id", ev.EventID))
			return nil
		}
		_, err := cs.Create(ctx, store.Comment{
			BookID:    ev.BookID,
			ChapterID: ev.ChapterID,
			UserID:    ev.UserID,
			ParentID:  ev.ParentID,
			Body:      ev.Body,
		})
		return err
	case "update":
		err := cs.UpdateBody(ctx, ev.CommentID, ev.UserID, ev.Body)
		if errors.Is(err, store.ErrNotFoundOrForbidden) {
			return nil
		}
		return err
	case "delete":
		err := cs.SoftDelete(ctx, ev.CommentID, ev.UserID)
		if errors.Is(err, store.ErrNotFoundOrForbidden) {
			return nil
		}
		return err
	case "vote":
		if ev.Vote != 1 && ev.Vote != -1 {
			log.Warn("comments consumer: dropping invalid vote", zap.String("event_id", ev.EventID))
			return nil
		}
		err := cs.Vote(ctx, ev.CommentID, ev.UserID, ev.Vote)
		if errors.Is(err, store.ErrNotFoundOrForbidden) {
			return nil
		}
		return err
	default:
		log.Warn("comments consumer: unknown action", zap.String("subject", m.Subject))
		return nil
	}
}

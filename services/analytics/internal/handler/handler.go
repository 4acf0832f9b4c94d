// Package handler routes raw NATS messages to PostHog captures.
// Events arrive either on analytics.* subjects (the platform envelope)
// or re-sourced from the operational streams the ANALYTICS stream mirrors.
package handler

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Capturer is the sink side of the dispatcher. Satisfied by the
// posthog client; tests plug in a recorder.
type Capturer interface {
	Capture(distinctID, event string, props map[string]any)
	Identify(distinctID string, traits map[string]any)
}

// envelope matches the platform analytics publisher's event shape.
type envelope struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties"`
}

// Dispatcher routes incoming NATS messages to the correct capture call.
type Dispatcher struct {
	ph  Capturer
	log *zap.Logger
}

func New(ph Capturer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{ph: ph, log: log}
}

// Dispatch routes msg by subject. Unknown subjects are logged and
// dropped; the caller acks regardless to avoid replay loops.
func (d *Dispatcher) Dispatch(msg *nats.Msg) {
	subj := msg.Subject
	switch {
	case strings.HasPrefix(subj, "analytics."):
		d.handleEnvelope(msg)
	case subj == "activity.progress":
		d.handleReadingProgress(msg)
	case strings.HasPrefix(subj, "social.comments."):
		d.handleSocialComment(msg)
	case strings.HasPrefix(subj, "catalog."):
		d.handleCatalogEvent(msg)
	default:
		d.log.Debug("unhandled subject", zap.String("subject", subj))
	}
}

// handleEnvelope covers every analytics.* subject: the platform
// publisher always wraps events in the same envelope, so one capture
// path serves them all. Registration additionally identifies the user.
func (d *Dispatcher) handleEnvelope(msg *nats.Msg) {
	var ev envelope
	if !unmarshal(d.log, msg, &ev) {
		return
	}
	if ev.EventName == "" {
		d.log.Warn("envelope without event_name", zap.String("subject", msg.Subject))
		return
	}

	distinctID := ev.UserID
	if distinctID == "" {
		distinctID = "anonymous"
	}

	if msg.Subject == "analytics.auth.registered" {
		traits := map[string]any{"created_at": ev.OccurredAt}
		if username, ok := ev.Properties["username"]; ok {
			traits["username"] = username
		}
		d.ph.Identify(distinctID, traits)
	}

	d.ph.Capture(distinctID, ev.EventName, ev.Properties)
}

// handleReadingProgress mirrors the raw progress events the activity
// worker consumes. Only scroll positions at or past the end of a
// chapter are captured, otherwise every tick would hit PostHog.
func (d *Dispatcher) handleReadingProgress(msg *nats.Msg) {
	var ev struct {
		UserID         string  `json:"user_id"`
		BookID         string  `json:"book_id"`
		ChapterID      *string `json:"chapter_id"`
		ScrollPosition float64 `json:"scroll_position"`
	}
	if !unmarshal(d.log, msg, &ev) {
		return
	}
	if ev.UserID == "" || ev.ScrollPosition < 1 {
		return
	}
	props := map[string]any{"book_id": ev.BookID}
	if ev.ChapterID != nil {
		props["chapter_id"] = *ev.ChapterID
	}
	d.ph.Capture(ev.UserID, "chapter_finished", props)
}

func (d *Dispatcher) handleSocialComment(msg *nats.Msg) {
	action := strings.TrimPrefix(msg.Subject, "social.comments.")
	if action != "create" {
		return
	}
	var ev struct {
		UserID string `json:"user_id"`
		BookID string `json:"book_id"`
	}
	if !unmarshal(d.log, msg, &ev) {
		return
	}
	if ev.UserID == "" {
		return
	}
	d.ph.Capture(ev.UserID, "comment_created", map[string]any{"book_id": ev.BookID})
}

// handleCatalogEvent tracks scheduled chapter publishes flowing through
// the catalog outbox; author-triggered publishes already arrive on
// analytics.catalog.* via the envelope path.
func (d *Dispatcher) handleCatalogEvent(msg *nats.Msg) {
	if msg.Subject != "catalog.chapter.published" {
		return
	}
	var ev struct {
		ID        string `json:"id"`
		BookID    string `json:"book_id"`
		UserID    string `json:"user_id"`
		WordCount int    `json:"word_count"`
	}
	if !unmarshal(d.log, msg, &ev) {
		return
	}
	if ev.UserID == "" {
		return
	}
	d.ph.Capture(ev.UserID, "chapter_published", map[string]any{
		"book_id":    ev.BookID,
		"chapter_id": ev.ID,
		"word_count": ev.WordCount,
		"scheduled":  true,
	})
}

func unmarshal(log *zap.Logger, msg *nats.Msg, dst any) bool {
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		log.Error("unmarshal message",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return false
	}
	return true
}

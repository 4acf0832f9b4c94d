// Package indexer keeps the Meilisearch books index in sync with the
// catalog. It consumes catalog events and periodically reindexes the
// full set of published books to heal any drift.
package indexer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/virexbooks/services/search/internal/meili"
	"github.com/example/virexbooks/services/search/internal/store"
)

const (
	catalogSubjects = "catalog.>"
	IndexName       = "books"
)

type Indexer struct {
	Books        store.BookSource
	Meili        *meili.Client
	Log          *zap.Logger
	NATS         *nats.Conn
	ReindexEvery time.Duration
}

// eventPayload covers both book and chapter event shapes; a chapter
// event carries book_id, a book event carries id.
type eventPayload struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
}

func (p eventPayload) bookID() string {
	if p.BookID != "" {
		return p.BookID
	}
	return p.ID
}

func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	if err := ix.Meili.EnsureIndex(ctx, IndexName, "book_id"); err != nil {
		return err
	}
	settings := map[string]any{
		"searchableAttributes": []string{"title", "description", "tags"},
		"filterableAttributes": []string{"genre", "tags", "language", "status"},
		"sortableAttributes":   []string{"like_count", "updated_at"},
	}
	return ix.Meili.UpdateSettings(ctx, IndexName, settings)
}

func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.EnsureIndex(ctx); err != nil {
		return err
	}
	js, err := ix.NATS.JetStream()
	if err != nil {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "CATALOG_EVENTS",
		Subjects: []string{"catalog.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return err
	}

	sub, err := js.PullSubscribe(catalogSubjects, "search_indexer")
	if err != nil {
		return err
	}

	if ix.ReindexEvery > 0 {
		go ix.reindexLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(100, nats.MaxWait(2*time.Second))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			return err
		}
		for _, m := range msgs {
			if err := ix.handleMsg(ctx, m); err != nil {
				ix.Log.Warn("index event failed", zap.String("subject", m.Subject), zap.Error(err))
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

func (ix *Indexer) handleMsg(ctx context.Context, msg *nats.Msg) error {
	var payload eventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		// malformed payloads never become indexable, ack them away
		ix.Log.Warn("drop malformed catalog event", zap.String("subject", msg.Subject))
		return nil
	}
	id := strings.TrimSpace(payload.bookID())
	if id == "" {
		return nil
	}
	return ix.IndexBook(ctx, id)
}

func (ix *Indexer) reindexLoop(ctx context.Context) {
	ticker := time.NewTicker(ix.ReindexEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.ReindexAll(ctx); err != nil {
				ix.Log.Warn("reindex failed", zap.Error(err))
			}
		}
	}
}

// ReindexAll upserts every published book and sweeps index entries
// whose book is no longer in the published set, so a missed unpublish
// or delete event cannot leave a stale document behind.
func (ix *Indexer) ReindexAll(ctx context.Context) error {
	ids, err := ix.Books.PublishedBookIDs(ctx)
	if err != nil {
		return err
	}
	published := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := ix.IndexBook(ctx, id); err != nil {
			return err
		}
		published[id] = struct{}{}
	}

	indexed, err := ix.Meili.DocumentIDs(ctx, IndexName, "book_id")
	if err != nil {
		return err
	}
	removed := 0
	for _, id := range indexed {
		if _, ok := published[id]; ok {
			continue
		}
		if err := ix.Meili.DeleteDocument(ctx, IndexName, id); err != nil {
			return err
		}
		removed++
	}
	ix.Log.Info("reindexed books", zap.Int("count", len(ids)), zap.Int("removed", removed))
	return nil
}

// IndexBook upserts one book, or removes it from the index when it is
// no longer published.
func (ix *Indexer) IndexBook(ctx context.Context, bookID string) error {
	doc, ok, err := ix.Books.PublishedBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return ix.Meili.DeleteDocument(ctx, IndexName, bookID)
	}
	return ix.Meili.AddDocuments(ctx, IndexName, []store.BookDoc{doc})
}

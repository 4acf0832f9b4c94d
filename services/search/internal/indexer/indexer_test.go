package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/virexbooks/services/search/internal/meili"
	"github.com/example/virexbooks/services/search/internal/store"
)

type fakeBooks struct {
	docs map[string]store.BookDoc
}

func (f *fakeBooks) PublishedBook(_ context.Context, bookID string) (store.BookDoc, bool, error) {
	d, ok := f.docs[bookID]
	return d, ok, nil
}

func (f *fakeBooks) PublishedBookIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

// fakeMeili speaks just enough of the Meilisearch document API for the
// indexer: upsert, delete, and the paged listing.
type fakeMeili struct {
	mu      sync.Mutex
	docs    map[string]struct{}
	added   []string
	deleted []string
}

func newFakeMeili(ids ...string) *fakeMeili {
	f := &fakeMeili{docs: map[string]struct{}{}}
	for _, id := range ids {
		f.docs[id] = struct{}{}
	}
	return f
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/indexes/books/documents":
		var docs []store.BookDoc
		if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, d := range docs {
			f.docs[d.BookID] = struct{}{}
			f.added = append(f.added, d.BookID)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/indexes/books/documents/"):
		id := strings.TrimPrefix(r.URL.Path, "/indexes/books/documents/")
		delete(f.docs, id)
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && r.URL.Path == "/indexes/books/documents":
		results := make([]map[string]string, 0, len(f.docs))
		for id := range f.docs {
			results = append(results, map[string]string{"book_id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "total": len(results)})
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func newTestIndexer(t *testing.T, books *fakeBooks, fm *fakeMeili) *Indexer {
	t.Helper()
	srv := httptest.NewServer(fm)
	t.Cleanup(srv.Close)
	return &Indexer{
		Books: books,
		Meili: meili.New(srv.URL, ""),
		Log:   zap.NewNop(),
	}
}

func TestIndexBookUpsertsPublished(t *testing.T) {
	fm := newFakeMeili()
	ix := newTestIndexer(t, &fakeBooks{docs: map[string]store.BookDoc{
		"b1": {BookID: "b1", Title: "Ashfall", Status: "published"},
	}}, fm)

	if err := ix.IndexBook(context.Background(), "b1"); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(fm.added) != 1 || fm.added[0] != "b1" {
		t.Fatalf("added = %v, want [b1]", fm.added)
	}
}

func TestIndexBookRemovesUnpublished(t *testing.T) {
	fm := newFakeMeili("b1")
	ix := newTestIndexer(t, &fakeBooks{docs: map[string]store.BookDoc{}}, fm)

	if err := ix.IndexBook(context.Background(), "b1"); err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(fm.deleted) != 1 || fm.deleted[0] != "b1" {
		t.Fatalf("deleted = %v, want [b1]", fm.deleted)
	}
	if len(fm.added) != 0 {
		t.Fatalf("unexpected upserts: %v", fm.added)
	}
}

func TestHandleMsgReindexesBookFromChapterEvent(t *testing.T) {
	fm := newFakeMeili()
	ix := newTestIndexer(t, &fakeBooks{docs: map[string]store.BookDoc{
		"b1": {BookID: "b1", Title: "Ashfall", Status: "published"},
	}}, fm)

	msg := &nats.Msg{
		Subject: "catalog.chapter.updated",
		Data:    []byte(`{"id":"c1","book_id":"b1","user_id":"u1"}`),
	}
	if err := ix.handleMsg(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fm.added) != 1 || fm.added[0] != "b1" {
		t.Fatalf("added = %v, want [b1]", fm.added)
	}
}

func TestHandleMsgDropsBookFromUnpublishEvent(t *testing.T) {
	fm := newFakeMeili("b1")
	ix := newTestIndexer(t, &fakeBooks{docs: map[string]store.BookDoc{}}, fm)

	msg := &nats.Msg{
		Subject: "catalog.book.unpublished",
		Data:    []byte(`{"id":"b1","user_id":"u1","status":"draft"}`),
	}
	if err := ix.handleMsg(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fm.deleted) != 1 || fm.deleted[0] != "b1" {
		t.Fatalf("deleted = %v, want [b1]", fm.deleted)
	}
}

func TestReindexAllSweepsStaleDocuments(t *testing.T) {
	fm := newFakeMeili("b1", "b2")
	ix := newTestIndexer(t, &fakeBooks{docs: map[string]store.BookDoc{
		"b1": {BookID: "b1", Title: "Ashfall", Status: "published"},
	}}, fm)

	if err := ix.ReindexAll(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(fm.deleted) != 1 || fm.deleted[0] != "b2" {
		t.Fatalf("deleted = %v, want [b2]", fm.deleted)
	}
	if _, ok := fm.docs["b1"]; !ok {
		t.Fatal("published book missing from index after reindex")
	}
	if _, ok := fm.docs["b2"]; ok {
		t.Fatal("stale book still in index after reindex")
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/catalog/internal/store"
)

func setupReq(method, target, body, userID string, params map[string]string) *http.Request {
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func mustCreateBook(t *testing.T, books store.BookStore, userID string) store.Book {
	t.Helper()
	b, err := books.Create(context.Background(), store.Book{
		UserID: userID, Title: "Nightfall", Genre: "fantasy",
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestCreateBook(t *testing.T) {
	books := store.NewInMemoryBookStore()
	h := CreateBook(books)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/books", `{"title":"Nightfall","genre":"fantasy","tags":["dark"]}`, "user-1", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var b store.Book
	if err := json.Unmarshal(rr.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Status != store.BookDraft || b.UserID != "user-1" {
		t.Fatalf("unexpected book: %+v", b)
	}
}

func TestCreateBookValidation(t *testing.T) {
	books := store.NewInMemoryBookStore()
	h := CreateBook(books)

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{"genre":"fantasy"}`},
		{"missing genre", `{"title":"x"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h(rr, setupReq(http.MethodPost, "/v1/books", tc.body, "user-1", nil))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestCreateBookRequiresAuth(t *testing.T) {
	h := CreateBook(store.NewInMemoryBookStore())
	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/books", `{"title":"x","genre":"y"}`, "", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGetBookHidesDraftsFromOthers(t *testing.T) {
	books := store.NewInMemoryBookStore()
	b := mustCreateBook(t, books, "author-1")
	h := GetBook(books)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/"+b.ID, "", "reader-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("draft visible to non-owner, status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/"+b.ID, "", "author-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("draft hidden from owner, status = %d", rr.Code)
	}

	if err := books.SetStatus(context.Background(), b.ID, "author-1", store.BookPublished); err != nil {
		t.Fatalf("publish: %v", err)
	}
	rr = httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/"+b.ID, "", "", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("published book not readable anonymously, status = %d", rr.Code)
	}
}

func TestPublishBook(t *testing.T) {
	books := store.NewInMemoryBookStore()
	b := mustCreateBook(t, books, "author-1")
	h := SetBookStatus(books, store.BookPublished, nil)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/books/"+b.ID+"/publish", "", "author-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out store.Book
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Status != store.BookPublished {
		t.Fatalf("status = %q, want published", out.Status)
	}
}

func TestUnpublishBookQueuesCatalogEvent(t *testing.T) {
	books := store.NewInMemoryBookStore()
	var subjects []string
	books.Record = func(_ context.Context, _ store.Execer, subject string, _ any) error {
		subjects = append(subjects, subject)
		return nil
	}
	b := mustCreateBook(t, books, "author-1")

	publish := SetBookStatus(books, store.BookPublished, nil)
	rr := httptest.NewRecorder()
	publish(rr, setupReq(http.MethodPost, "/v1/books/"+b.ID+"/publish", "", "author-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("publish status = %d", rr.Code)
	}

	unpublish := SetBookStatus(books, store.BookDraft, nil)
	rr = httptest.NewRecorder()
	unpublish(rr, setupReq(http.MethodPost, "/v1/books/"+b.ID+"/unpublish", "", "author-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("unpublish status = %d", rr.Code)
	}

	want := []string{store.SubjectBookPublished, store.SubjectBookUnpublished}
	if len(subjects) != 2 || subjects[0] != want[0] || subjects[1] != want[1] {
		t.Fatalf("recorded %v, want %v", subjects, want)
	}
}

func TestInvalidBookID(t *testing.T) {
	h := GetBook(store.NewInMemoryBookStore())
	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/nope", "", "", map[string]string{"book_id": "nope"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateChapterComputesWordCount(t *testing.T) {
	books := store.NewInMemoryBookStore()
	chapters := store.NewInMemoryChapterStore()
	b := mustCreateBook(t, books, "author-1")
	h := CreateChapter(books, chapters)

	body := `{"title":"One","content":"the   rain  fell \n all night","order_index":1}`
	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/books/"+b.ID+"/chapters", body, "author-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var c store.Chapter
	_ = json.Unmarshal(rr.Body.Bytes(), &c)
	if c.WordCount != 5 {
		t.Fatalf("word count = %d, want 5", c.WordCount)
	}
	if c.Status != store.ChapterDraft {
		t.Fatalf("status = %q, want draft", c.Status)
	}
}

func TestCreateChapterOnForeignBook(t *testing.T) {
	books := store.NewInMemoryBookStore()
	chapters := store.NewInMemoryChapterStore()
	b := mustCreateBook(t, books, "author-1")
	h := CreateChapter(books, chapters)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/books/"+b.ID+"/chapters", `{"title":"One"}`, "intruder", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestPublishChapterNow(t *testing.T) {
	chapters := store.NewInMemoryChapterStore()
	c, _ := chapters.Create(context.Background(), store.Chapter{
		BookID: uuid.NewString(), UserID: "author-1", Title: "One",
	})
	h := PublishChapter(chapters, nil)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/chapters/"+c.ID+"/publish", "", "author-1", map[string]string{"chapter_id": c.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out store.Chapter
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Status != store.ChapterPublished || out.PublishAt != nil {
		t.Fatalf("unexpected chapter after publish: %+v", out)
	}
}

func TestPublishChapterScheduled(t *testing.T) {
	chapters := store.NewInMemoryChapterStore()
	c, _ := chapters.Create(context.Background(), store.Chapter{
		BookID: uuid.NewString(), UserID: "author-1", Title: "One",
	})
	h := PublishChapter(chapters, nil)

	at := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	body := `{"publish_at":"` + at + `"}`
	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/chapters/"+c.ID+"/publish", body, "author-1", map[string]string{"chapter_id": c.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out store.Chapter
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.Status != store.ChapterDraft || out.PublishAt == nil {
		t.Fatalf("scheduled chapter should stay draft with publish_at set: %+v", out)
	}
}

func TestListChaptersStripsDraftsAndContent(t *testing.T) {
	books := store.NewInMemoryBookStore()
	chapters := store.NewInMemoryChapterStore()
	b := mustCreateBook(t, books, "author-1")

	_, _ = chapters.Create(context.Background(), store.Chapter{
		BookID: b.ID, UserID: "author-1", Title: "draft", Content: "secret", OrderIndex: 2,
	})
	pub, _ := chapters.Create(context.Background(), store.Chapter{
		BookID: b.ID, UserID: "author-1", Title: "live", Content: "words here",
		OrderIndex: 1, Status: store.ChapterPublished,
	})

	h := ListChapters(chapters)
	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/"+b.ID+"/chapters", "", "reader-1", map[string]string{"book_id": b.ID}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Items []store.Chapter `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || resp.Items[0].ID != pub.ID {
		t.Fatalf("expected only the published chapter, got %+v", resp.Items)
	}
	if resp.Items[0].Content != "" {
		t.Fatalf("content leaked in listing")
	}

	rr = httptest.NewRecorder()
	h(rr, setupReq(http.MethodGet, "/v1/books/"+b.ID+"/chapters", "", "author-1", map[string]string{"book_id": b.ID}))
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Items) != 2 {
		t.Fatalf("owner should see all chapters, got %d", len(resp.Items))
	}
}

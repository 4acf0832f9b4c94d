package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/services/catalog/internal/store"
)

type chapterRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	OrderIndex int    `json:"order_index"`
}

type publishChapterRequest struct {
	PublishAt *time.Time `json:"publish_at"`
}

// countWords matches how editors report length: whitespace-separated runs.
func countWords(content string) int {
	return len(strings.Fields(content))
}

// CreateChapter handles POST /v1/books/{book_id}/chapters. The word count
// is always computed server-side from the content.
func CreateChapter(books store.BookStore, chapters store.ChapterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		bookID, ok := pathUUID(w, r, "book_id", rid)
		if !ok {
			return
		}

		b, err := books.Get(r.Context(), bookID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && b.UserID != uid) {
			api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		var req chapterRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			api.BadRequest(w, "TITLE_REQUIRED", "title is required", rid, nil)
			return
		}

		c, err := chapters.Create(r.Context(), store.Chapter{
			BookID:     bookID,
			UserID:     uid,
			Title:      strings.TrimSpace(req.Title),
			Content:    req.Content,
			OrderIndex: req.OrderIndex,
			WordCount:  countWords(req.Content),
		})
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, c)
	}
}

// UpdateChapter handles PUT /v1/chapters/{chapter_id}.
func UpdateChapter(chapters store.ChapterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		chapterID, ok := pathUUID(w, r, "chapter_id", rid)
		if !ok {
			return
		}

		existing, err := chapters.Get(r.Context(), chapterID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && existing.UserID != uid) {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		var req chapterRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			api.BadRequest(w, "TITLE_REQUIRED", "title is required", rid, nil)
			return
		}

		existing.Title = strings.TrimSpace(req.Title)
		existing.Content = req.Content
		existing.OrderIndex = req.OrderIndex
		existing.WordCount = countWords(req.Content)

		c, err := chapters.Update(r.Context(), existing)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

// DeleteChapter handles DELETE /v1/chapters/{chapter_id}.
func DeleteChapter(chapters store.ChapterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		chapterID, ok := pathUUID(w, r, "chapter_id", rid)
		if !ok {
			return
		}

		err := chapters.Delete(r.Context(), chapterID, uid)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetChapter handles GET /v1/chapters/{chapter_id}. Drafts are visible
// only to their author; reads on published chapters emit an analytics
// event for view counting.
func GetChapter(chapters store.ChapterStore, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		chapterID, ok := pathUUID(w, r, "chapter_id", rid)
		if !ok {
			return
		}

		c, err := chapters.Get(r.Context(), chapterID)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		uid, _ := auth.UserIDFromContext(r.Context())
		if c.Status != store.ChapterPublished && uid != c.UserID {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}

		if c.Status == store.ChapterPublished && uid != "" && uid != c.UserID {
			ap.Publish(analytics.SubjectChapterRead, "chapter_read", uid, map[string]any{
				"book_id":    c.BookID,
				"chapter_id": c.ID,
			})
		}
		api.WriteJSON(w, http.StatusOK, c)
	}
}

// ListChapters handles GET /v1/books/{book_id}/chapters. The owner sees
// every chapter; everyone else sees only published ones, without content.
func ListChapters(chapters store.ChapterStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		bookID, ok := pathUUID(w, r, "book_id", rid)
		if !ok {
			return
		}

		all, err := chapters.ListByBook(r.Context(), bookID)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		uid, _ := auth.UserIDFromContext(r.Context())
		out := make([]store.Chapter, 0, len(all))
		for _, c := range all {
			if c.UserID == uid {
				out = append(out, c)
				continue
			}
			if c.Status == store.ChapterPublished {
				c.Content = ""
				out = append(out, c)
			}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// PublishChapter handles POST /v1/chapters/{chapter_id}/publish. With a
// future publish_at the chapter stays a draft and the scheduler flips it
// later; otherwise it is published immediately.
func PublishChapter(chapters store.ChapterStore, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		chapterID, ok := pathUUID(w, r, "chapter_id", rid)
		if !ok {
			return
		}

		c, err := chapters.Get(r.Context(), chapterID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && c.UserID != uid) {
			api.NotFound(w, "CHAPTER_NOT_FOUND", "chapter not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		var req publishChapterRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
				api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
				return
			}
		}

		now := time.Now().UTC()
		if req.PublishAt != nil && req.PublishAt.After(now) {
			c.Status = store.ChapterDraft
			c.PublishAt = req.PublishAt
		} else {
			c.Status = store.ChapterPublished
			c.PublishAt = nil
		}

		updated, err := chapters.Update(r.Context(), c)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		if updated.Status == store.ChapterPublished {
			ap.Publish(analytics.SubjectChapterPublished, "chapter_published", uid, map[string]any{
				"book_id":    updated.BookID,
				"chapter_id": updated.ID,
				"word_count": updated.WordCount,
			})
		}
		api.WriteJSON(w, http.StatusOK, updated)
	}
}

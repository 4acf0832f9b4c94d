package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/internal/platform/signing"
	"github.com/example/virexbooks/services/catalog/internal/store"
)

const maxBodyBytes = 1 << 20

type bookRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Genre       string   `json:"genre"`
	Tags        []string `json:"tags"`
	Language    string   `json:"language"`
	CoverURL    string   `json:"cover_url"`
}

func (r bookRequest) validate() (code, msg string) {
	if strings.TrimSpace(r.Title) == "" {
		return "TITLE_REQUIRED", "title is required"
	}
	if len(r.Title) > 200 {
		return "TITLE_TOO_LONG", "title must be at most 200 characters"
	}
	if strings.TrimSpace(r.Genre) == "" {
		return "GENRE_REQUIRED", "genre is required"
	}
	if len(r.Tags) > 10 {
		return "TOO_MANY_TAGS", "at most 10 tags"
	}
	return "", ""
}

// CreateBook handles POST /v1/books. New books start as drafts.
func CreateBook(books store.BookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}

		var req bookRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if code, msg := req.validate(); code != "" {
			api.BadRequest(w, code, msg, rid, nil)
			return
		}

		b, err := books.Create(r.Context(), store.Book{
			UserID:      uid,
			Title:       strings.TrimSpace(req.Title),
			Description: req.Description,
			Genre:       req.Genre,
			Tags:        req.Tags,
			Language:    req.Language,
			CoverURL:    req.CoverURL,
		})
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, b)
	}
}

// UpdateBook handles PUT /v1/books/{book_id}. Only the owner may edit.
func UpdateBook(books store.BookStore) http.HandlerFunc {
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

		var req bookRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if code, msg := req.validate(); code != "" {
			api.BadRequest(w, code, msg, rid, nil)
			return
		}

		b, err := books.Update(r.Context(), store.Book{
			ID:          bookID,
			UserID:      uid,
			Title:       strings.TrimSpace(req.Title),
			Description: req.Description,
			Genre:       req.Genre,
			Tags:        req.Tags,
			Language:    req.Language,
			CoverURL:    req.CoverURL,
		})
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, b)
	}
}

// DeleteBook handles DELETE /v1/books/{book_id}.
func DeleteBook(books store.BookStore) http.HandlerFunc {
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

		err := books.Delete(r.Context(), bookID, uid)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetBook handles GET /v1/books/{book_id}. Drafts are visible only to
// their owner.
func GetBook(books store.BookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		bookID, ok := pathUUID(w, r, "book_id", rid)
		if !ok {
			return
		}

		b, err := books.Get(r.Context(), bookID)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		if b.Status != store.BookPublished {
			uid, _ := auth.UserIDFromContext(r.Context())
			if uid != b.UserID {
				api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
				return
			}
		}
		api.WriteJSON(w, http.StatusOK, b)
	}
}

// ListMyBooks handles GET /v1/books, the author dashboard listing.
func ListMyBooks(books store.BookStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := requireUser(w, r, rid)
		if !ok {
			return
		}
		out, err := books.ListByOwner(r.Context(), uid)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if out == nil {
			out = []store.Book{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// SetBookStatus returns a handler that moves a book to the given status.
// Used for POST /v1/books/{book_id}/publish and /unpublish.
func SetBookStatus(books store.BookStore, status string, ap *analytics.Publisher) http.HandlerFunc {
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

		err := books.SetStatus(r.Context(), bookID, uid, status)
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "BOOK_NOT_FOUND", "book not found", rid)
			return
		}
		if err != nil {
			api.Internal(w, rid)
			return
		}

		if status == store.BookPublished {
			ap.Publish(analytics.SubjectBookPublished, "book_published", uid, map[string]any{
				"book_id": bookID,
			})
		}
		b, err := books.Get(r.Context(), bookID)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, b)
	}
}

// PresignCoverUpload handles POST /v1/books/{book_id}/cover-upload,
// returning a signed URL the client PUTs the image to.
func PresignCoverUpload(books store.BookStore, signer *signing.Signer, uploadBase string, ttl time.Duration) http.HandlerFunc {
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

		objectKey := "covers/" + bookID + "/" + uuid.NewString() + ".jpg"
		signed := signer.Sign(objectKey, uid, time.Now().Add(ttl))
		uploadURL, err := signing.BuildUploadURL(uploadBase, signed)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"upload_url": uploadURL,
			"object_key": objectKey,
			"expires_at": signed.Exp,
		})
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, rid string) (string, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(uid) == "" {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return "", false
	}
	return uid, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, rid string) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		api.BadRequest(w, "INVALID_ID", "invalid "+name, rid, nil)
		return "", false
	}
	return id.String(), true
}

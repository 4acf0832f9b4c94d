package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/social/internal/store"
)

// LikeBook handles PUT /v1/likes/{book_id}
func LikeBook(ls store.LikeStore, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		bookID := strings.TrimSpace(chi.URLParam(r, "book_id"))
		if bookID == "" {
			api.BadRequest(w, "MISSING_ID", "book_id is required", "", nil)
			return
		}
		if err := ls.Like(r.Context(), bookID, userID); err != nil {
			api.Internal(w, "")
			return
		}
		ap.Publish(analytics.SubjectBookLiked, "book_liked", userID, map[string]any{
			"book_id": bookID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// UnlikeBook handles DELETE /v1/likes/{book_id}
func UnlikeBook(ls store.LikeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		bookID := strings.TrimSpace(chi.URLParam(r, "book_id"))
		if bookID == "" {
			api.BadRequest(w, "MISSING_ID", "book_id is required", "", nil)
			return
		}
		if err := ls.Unlike(r.Context(), bookID, userID); err != nil {
			api.Internal(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetLikes handles GET /v1/likes/{book_id}
func GetLikes(ls store.LikeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookID := strings.TrimSpace(chi.URLParam(r, "book_id"))
		if bookID == "" {
			api.BadRequest(w, "MISSING_ID", "book_id is required", "", nil)
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		sum, err := ls.Summary(r.Context(), bookID, userID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, sum)
	}
}

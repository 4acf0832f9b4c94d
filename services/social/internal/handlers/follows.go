package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/social/internal/store"
)

// FollowAuthor handles PUT /v1/follows/{author_id}
func FollowAuthor(fs store.FollowStore, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		authorID := strings.TrimSpace(chi.URLParam(r, "author_id"))
		if authorID == "" {
			api.BadRequest(w, "MISSING_ID", "author_id is required", "", nil)
			return
		}

		if err := fs.Follow(r.Context(), userID, authorID); err != nil {
			if errors.Is(err, store.ErrSelfFollow) {
				api.BadRequest(w, "SELF_FOLLOW", "cannot follow yourself", "", nil)
				return
			}
			api.Internal(w, "")
			return
		}
		ap.Publish(analytics.SubjectAuthorFollowed, "author_followed", userID, map[string]any{
			"author_id": authorID,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// UnfollowAuthor handles DELETE /v1/follows/{author_id}
func UnfollowAuthor(fs store.FollowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		authorID := strings.TrimSpace(chi.URLParam(r, "author_id"))
		if authorID == "" {
			api.BadRequest(w, "MISSING_ID", "author_id is required", "", nil)
			return
		}
		if err := fs.Unfollow(r.Context(), userID, authorID); err != nil {
			api.Internal(w, "")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListFollowing handles GET /v1/follows
func ListFollowing(fs store.FollowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}
		following, err := fs.Following(r.Context(), userID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		if following == nil {
			following = []string{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"following": following})
	}
}

// GetFollowerCount handles GET /v1/follows/{author_id}/count
func GetFollowerCount(fs store.FollowStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorID := strings.TrimSpace(chi.URLParam(r, "author_id"))
		if authorID == "" {
			api.BadRequest(w, "MISSING_ID", "author_id is required", "", nil)
			return
		}
		n, err := fs.FollowerCount(r.Context(), authorID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"author_id": authorID, "followers": n})
	}
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/social/internal/store"
)

type feedResponse struct {
	Items []store.FeedItem `json:"items"`
}

// GetFeed handles GET /v1/feed: recent publications from followed authors.
func GetFeed(fs store.FollowStore, src store.FeedSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", "")
			return
		}

		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}

		following, err := fs.Following(r.Context(), userID)
		if err != nil {
			api.Internal(w, "")
			return
		}
		if len(following) == 0 {
			api.WriteJSON(w, http.StatusOK, feedResponse{Items: []store.FeedItem{}})
			return
		}

		items, err := src.RecentByAuthors(r.Context(), following, limit)
		if err != nil {
			api.Internal(w, "")
			return
		}
		if items == nil {
			items = []store.FeedItem{}
		}
		api.WriteJSON(w, http.StatusOK, feedResponse{Items: items})
	}
}

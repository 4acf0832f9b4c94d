// Package handlers exposes the public book search endpoint.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/services/search/internal/indexer"
	"github.com/example/virexbooks/services/search/internal/meili"
	"github.com/example/virexbooks/services/search/internal/store"
)

type searchResult struct {
	Hits  []store.BookDoc `json:"hits"`
	Total int             `json:"total"`
}

// Query names the filterable parameters of GET /v1/search.
type Query struct {
	Q        string
	Genre    string
	Tag      string
	Language string
	Limit    int
	Offset   int
}

func parseQuery(r *http.Request) Query {
	q := Query{
		Q:        strings.TrimSpace(r.URL.Query().Get("q")),
		Genre:    strings.TrimSpace(r.URL.Query().Get("genre")),
		Tag:      strings.TrimSpace(r.URL.Query().Get("tag")),
		Language: strings.TrimSpace(r.URL.Query().Get("language")),
		Limit:    25,
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		q.Limit = v
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		q.Offset = v
	}
	return q
}

// Filter renders the Meilisearch filter expression, empty when no
// filterable parameter is set.
func (q Query) Filter() string {
	var filters []string
	if q.Genre != "" {
		filters = append(filters, fmt.Sprintf("genre = %q", q.Genre))
	}
	if q.Tag != "" {
		filters = append(filters, fmt.Sprintf("tags = %q", q.Tag))
	}
	if q.Language != "" {
		filters = append(filters, fmt.Sprintf("language = %q", q.Language))
	}
	return strings.Join(filters, " AND ")
}

// SearchBooks handles GET /v1/search.
func SearchBooks(searcher meili.Searcher, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := parseQuery(r)

		payload := map[string]any{"q": q.Q, "limit": q.Limit, "offset": q.Offset}
		if f := q.Filter(); f != "" {
			payload["filter"] = f
		}

		resp, err := searcher.Search(r.Context(), indexer.IndexName, payload)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		out := searchResult{Hits: []store.BookDoc{}, Total: resp.EstimatedTotalHits}
		for _, hit := range resp.Hits {
			var doc store.BookDoc
			if err := json.Unmarshal(hit, &doc); err != nil {
				continue
			}
			out.Hits = append(out.Hits, doc)
		}

		uid, _ := auth.UserIDFromContext(r.Context())
		ap.Publish(analytics.SubjectSearchPerformed, "search.performed", uid, map[string]any{
			"query":         q.Q,
			"results_count": out.Total,
		})
		api.WriteJSON(w, http.StatusOK, out)
	}
}

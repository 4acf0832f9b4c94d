package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/services/activity/internal/aggregate"
	"github.com/example/virexbooks/services/activity/internal/store"
)

// defaultWindowDays bounds the content history fed into the aggregation
// when the caller does not pick a window.
const defaultWindowDays = 365

type upsertProgressRequest struct {
	ChapterID      *string `json:"chapter_id"`
	ScrollPosition float64 `json:"scroll_position"`
	ClientTsMs     int64   `json:"client_ts_ms"`
}

type progressResponse struct {
	UserID         string  `json:"user_id"`
	BookID         string  `json:"book_id"`
	ChapterID      *string `json:"chapter_id,omitempty"`
	ScrollPosition float64 `json:"scroll_position"`
	ClientTsMs     int64   `json:"client_ts_ms"`
	UpdatedAtMs    int64   `json:"updated_at_ms"`
}

type continueListResponse struct {
	Items      []progressResponse `json:"items"`
	Limit      int                `json:"limit"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// UpsertProgress handles PUT /v1/reading-progress/{book_id}.
// With JetStream available the write is published and acknowledged with
// 202; otherwise it is applied synchronously.
func UpsertProgress(progress store.ProgressRepository, publisher *EventPublisher, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		userID, err := uuid.Parse(uid)
		if err != nil {
			api.Unauthorized(w, "AUTH_INVALID", "Invalid subject", rid)
			return
		}

		bookID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "book_id")))
		if err != nil {
			api.BadRequest(w, "INVALID_BOOK_ID", "invalid book_id", rid, nil)
			return
		}

		var req upsertProgressRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if req.ClientTsMs == 0 {
			req.ClientTsMs = time.Now().UnixMilli()
		}

		if publisher != nil && publisher.Enabled() {
			payload := map[string]any{
				"user_id":         uid,
				"book_id":         bookID.String(),
				"chapter_id":      req.ChapterID,
				"scroll_position": clamp01(req.ScrollPosition),
				"client_ts_ms":    req.ClientTsMs,
			}
			eventID, err := publisher.PublishJSON("activity.progress", payload)
			if err != nil {
				api.WriteError(w, http.StatusServiceUnavailable, "EVENT_PUBLISH_FAILED", "failed to publish event", rid, nil)
				return
			}
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		rec := store.ProgressRecord{
			UserID:         userID,
			BookID:         bookID,
			ScrollPosition: clamp01(req.ScrollPosition),
			ClientTsMs:     req.ClientTsMs,
		}
		if req.ChapterID != nil && strings.TrimSpace(*req.ChapterID) != "" {
			chID, err := uuid.Parse(strings.TrimSpace(*req.ChapterID))
			if err != nil {
				api.BadRequest(w, "INVALID_CHAPTER_ID", "invalid chapter_id", rid, nil)
				return
			}
			rec.ChapterID = &chID
		}

		out, err := progress.Upsert(r.Context(), rec)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		ap.Publish(analytics.SubjectReadingProgressSaved, "progress_saved", uid, map[string]any{
			"book_id": bookID.String(),
		})
		api.WriteJSON(w, http.StatusOK, toProgressResponse(out))
	}
}

// ContinueReadingList handles GET /v1/reading-progress with keyset pagination.
func ContinueReadingList(progress store.ProgressRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		userID, err := uuid.Parse(uid)
		if err != nil {
			api.Unauthorized(w, "AUTH_INVALID", "Invalid subject", rid)
			return
		}

		limit := clampLimit(queryInt(r, "limit"), 25, 100)
		cursor := decodeCursor(r.URL.Query().Get("cursor"))

		records, err := progress.List(r.Context(), userID, limit, cursor)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		resp := continueListResponse{Limit: limit}
		for _, rec := range records {
			resp.Items = append(resp.Items, toProgressResponse(rec))
		}
		if len(records) == limit {
			last := records[len(records)-1]
			resp.NextCursor = encodeCursor(last.UpdatedAt.UnixMilli(), last.BookID.String())
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}

// Summary handles GET /v1/activity/summary. It snapshots both stores and
// folds them through the aggregator; window_days bounds the content
// history (default one year).
func Summary(progress store.ProgressRepository, content store.ContentRepository, agg aggregate.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok || strings.TrimSpace(uid) == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		userID, err := uuid.Parse(uid)
		if err != nil {
			api.Unauthorized(w, "AUTH_INVALID", "Invalid subject", rid)
			return
		}

		windowDays := queryInt(r, "window_days")
		if windowDays <= 0 || windowDays > 3650 {
			windowDays = defaultWindowDays
		}

		now := time.Now()
		since := now.AddDate(0, 0, -windowDays)

		contentRows, err := content.ListByOwner(r.Context(), userID, since, windowDays)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		progressRows, err := progress.List(r.Context(), userID, 100, nil)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		result := agg.Aggregate(toContentRecords(contentRows), toProgressRecords(progressRows), now)
		api.WriteJSON(w, http.StatusOK, result)
	}
}

func toContentRecords(rows []store.ContentRecord) []aggregate.ContentRecord {
	out := make([]aggregate.ContentRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, aggregate.ContentRecord{
			ID:        row.ID.String(),
			OwnerID:   row.OwnerID.String(),
			WordCount: row.WordCount,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out
}

func toProgressRecords(rows []store.ProgressRecord) []aggregate.ProgressRecord {
	out := make([]aggregate.ProgressRecord, 0, len(rows))
	for _, row := range rows {
		rec := aggregate.ProgressRecord{
			UserID:         row.UserID.String(),
			BookID:         row.BookID.String(),
			ScrollPosition: row.ScrollPosition,
			UpdatedAt:      row.UpdatedAt,
		}
		if row.ChapterID != nil {
			chID := row.ChapterID.String()
			rec.ChapterID = &chID
		}
		out = append(out, rec)
	}
	return out
}

func toProgressResponse(rec store.ProgressRecord) progressResponse {
	resp := progressResponse{
		UserID:         rec.UserID.String(),
		BookID:         rec.BookID.String(),
		ScrollPosition: rec.ScrollPosition,
		ClientTsMs:     rec.ClientTsMs,
		UpdatedAtMs:    rec.UpdatedAt.UnixMilli(),
	}
	if rec.ChapterID != nil {
		chID := rec.ChapterID.String()
		resp.ChapterID = &chID
	}
	return resp
}

// encodeCursor encodes updated_at millis and book UUID as a base64 opaque cursor.
func encodeCursor(tsMs int64, bookID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(tsMs, 10) + ":" + bookID))
}

// decodeCursor parses the opaque cursor produced by encodeCursor.
func decodeCursor(raw string) *store.ProgressCursor {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	parts := strings.SplitN(string(b), ":", 2)
	if len(parts) != 2 {
		return nil
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}
	bid, err := uuid.Parse(parts[1])
	if err != nil {
		return nil
	}
	return &store.ProgressCursor{
		UpdatedAt: time.UnixMilli(ts).UTC(),
		BookID:    bid,
	}
}

func queryInt(r *http.Request, key string) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func clampLimit(v, def, maxVal int) int {
	if v <= 0 {
		return def
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package handlers exposes the GDPR self-service API: data-access
// requests, on-demand exports, and account deletion with a grace period.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/api"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/services/gdpr/internal/export"
	"github.com/example/virexbooks/services/gdpr/internal/store"
)

const maxBodyBytes = 1 << 20

// UserLookup resolves the requesting user's identity for the audit
// trail. Satisfied by export.Source implementations.
type UserLookup interface {
	User(ctx context.Context, userID string) (export.User, error)
}

type createDataRequestBody struct {
	RequestType string `json:"request_type"`
}

// CreateDataRequest handles POST /v1/gdpr/data-requests.
func CreateDataRequest(requests store.DataRequestStore, users UserLookup, ttl time.Duration, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		reqType := store.RequestAccess
		if r.ContentLength > 0 {
			var body createDataRequestBody
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
				api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
				return
			}
			if body.RequestType != "" {
				reqType = body.RequestType
			}
		}
		if reqType != store.RequestAccess && reqType != store.RequestExport {
			api.BadRequest(w, "INVALID_REQUEST_TYPE", "request_type must be article_15 or article_20", rid, nil)
			return
		}

		user, err := users.User(r.Context(), uid)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		now := time.Now().UTC()
		created, err := requests.Create(r.Context(), store.DataRequest{
			UserID:      uid,
			RequestType: reqType,
			Email:       user.Email,
			RequestedAt: now,
			ExpiresAt:   now.Add(ttl),
			IPAddress:   clientIP(r),
			UserAgent:   r.UserAgent(),
		})
		if err != nil {
			api.Internal(w, rid)
			return
		}

		ap.Publish(analytics.SubjectDataExportRequested, "gdpr.export_requested", uid, map[string]any{
			"request_type": reqType,
		})
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// ListDataRequests handles GET /v1/gdpr/data-requests.
func ListDataRequests(requests store.DataRequestStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		list, err := requests.ListByUser(r.Context(), uid)
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if list == nil {
			list = []store.DataRequest{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"requests": list})
	}
}

// ExportData handles GET /v1/gdpr/export. The export is assembled
// synchronously and returned as a download.
func ExportData(builder *export.Builder, ap *analytics.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		data, err := builder.Build(r.Context(), uid)
		if err != nil {
			if errors.Is(err, export.ErrUserNotFound) {
				api.NotFound(w, "USER_NOT_FOUND", "user not found", rid)
				return
			}
			api.Internal(w, rid)
			return
		}

		ap.Publish(analytics.SubjectDataExportRequested, "gdpr.export_downloaded", uid, nil)

		filename := fmt.Sprintf("virexbooks-data-%s.json", data.ExportDate.Format("2006-01-02"))
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		api.WriteJSON(w, http.StatusOK, data)
	}
}

// RequestDeletion handles POST /v1/gdpr/deletion-request. The account
// is not removed immediately; the purge runs after the grace period.
func RequestDeletion(deletions store.DeletionRequestStore, users UserLookup, grace time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		user, err := users.User(r.Context(), uid)
		if err != nil {
			api.Internal(w, rid)
			return
		}

		now := time.Now().UTC()
		created, err := deletions.Create(r.Context(), store.DeletionRequest{
			UserID:              uid,
			Email:               user.Email,
			RequestedAt:         now,
			ScheduledDeletionAt: now.Add(grace),
			IPAddress:           clientIP(r),
			UserAgent:           r.UserAgent(),
		})
		if err != nil {
			if errors.Is(err, store.ErrAlreadyPending) {
				api.Conflict(w, "DELETION_ALREADY_PENDING", "a deletion request is already pending", rid, nil)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

// GetDeletionRequest handles GET /v1/gdpr/deletion-request.
func GetDeletionRequest(deletions store.DeletionRequestStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		req, err := deletions.GetPending(r.Context(), uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NO_PENDING_DELETION", "no pending deletion request", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, req)
	}
}

// CancelDeletion handles DELETE /v1/gdpr/deletion-request.
func CancelDeletion(deletions store.DeletionRequestStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			api.Unauthorized(w, "UNAUTHORIZED", "Authentication required", rid)
			return
		}

		if err := deletions.Cancel(r.Context(), uid, time.Now().UTC()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "NO_PENDING_DELETION", "no pending deletion request", rid)
				return
			}
			api.Internal(w, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

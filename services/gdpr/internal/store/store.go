// Package store persists GDPR data-access and account-deletion requests.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyPending = errors.New("request already pending")
)

// Data request types track which GDPR article the user invoked.
const (
	RequestAccess = "article_15"
	RequestExport = "article_20"
)

const (
	DataPending   = "pending"
	DataCompleted = "completed"
	DataExpired   = "expired"
	DataRejected  = "rejected"
)

const (
	DeletionPending   = "pending"
	DeletionCompleted = "completed"
	DeletionCancelled = "cancelled"
	DeletionFailed    = "failed"
)

type DataRequest struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	RequestType string     `json:"request_type"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	IPAddress   string     `json:"-"`
	UserAgent   string     `json:"-"`
}

type DeletionRequest struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Email               string     `json:"email"`
	Status              string     `json:"status"`
	RequestedAt         time.Time  `json:"requested_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ScheduledDeletionAt time.Time  `json:"scheduled_deletion_at"`
	IPAddress           string     `json:"-"`
	UserAgent           string     `json:"-"`
}

type DataRequestStore interface {
	// Create persists a new pending request and fills ID and timestamps.
	Create(ctx context.Context, req DataRequest) (DataRequest, error)
	ListByUser(ctx context.Context, userID string) ([]DataRequest, error)
	Complete(ctx context.Context, id string, now time.Time) error
	// ExpireStale flips pending requests whose expires_at has passed to
	// expired and reports how many were affected.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type DeletionRequestStore interface {
	// Create rejects a second request while one is still pending.
	Create(ctx context.Context, req DeletionRequest) (DeletionRequest, error)
	GetPending(ctx context.Context, userID string) (DeletionRequest, error)
	// Cancel flips the user's pending request to cancelled. Only pending
	// requests can be cancelled; once the grace period has run out and the
	// deletion executed there is nothing left to cancel.
	Cancel(ctx context.Context, userID string, now time.Time) error
	// Due returns pending requests whose grace period has elapsed.
	Due(ctx context.Context, now time.Time, limit int) ([]DeletionRequest, error)
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string) error
}

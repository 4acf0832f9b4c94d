package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Outbox subjects for catalog data changes. The search indexer consumes
// all of them; analytics additionally reads chapter publishes.
const (
	SubjectBookPublished    = "catalog.book.published"
	SubjectBookUnpublished  = "catalog.book.unpublished"
	SubjectBookUpdated      = "catalog.book.updated"
	SubjectBookDeleted      = "catalog.book.deleted"
	SubjectChapterPublished = "catalog.chapter.published"
	SubjectChapterUpdated   = "catalog.chapter.updated"
	SubjectChapterDeleted   = "catalog.chapter.deleted"
)

// Execer is the slice of pgx.Tx the record hook needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RecordFunc queues a catalog event in the same transaction as the data
// change that produced it. tx is nil for the in-memory stores.
type RecordFunc func(ctx context.Context, tx Execer, subject string, payload any) error

// bookEvent and chapterEvent are the outbox payload shapes. Consumers
// key off id and book_id to know which book changed.
type bookEvent struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status,omitempty"`
}

type chapterEvent struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
	UserID string `json:"user_id"`
}

// Book statuses.
const (
	BookDraft     = "draft"
	BookPublished = "published"
	BookArchived  = "archived"
)

// Chapter statuses.
const (
	ChapterDraft     = "draft"
	ChapterPublished = "published"
)

// Book is a serialized story composed of chapters.
type Book struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CoverURL     string     `json:"cover_url,omitempty"`
	Genre        string     `json:"genre"`
	Tags         []string   `json:"tags,omitempty"`
	Status       string     `json:"status"`
	Language     string     `json:"language,omitempty"`
	ViewCount    int        `json:"view_count"`
	LikeCount    int        `json:"like_count"`
	ChapterCount int        `json:"chapter_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// Chapter is one unit of writing inside a book. PublishAt, when set on a
// draft, is the instant the scheduler will flip it to published.
type Chapter struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content,omitempty"`
	OrderIndex int        `json:"order_index"`
	Status     string     `json:"status"`
	PublishAt  *time.Time `json:"publish_at,omitempty"`
	WordCount  int        `json:"word_count"`
	ViewCount  int        `json:"view_count"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BookStore defines persistence for books.
type BookStore interface {
	Create(ctx context.Context, b Book) (Book, error)
	Update(ctx context.Context, b Book) (Book, error)
	Delete(ctx context.Context, bookID, userID string) error
	Get(ctx context.Context, bookID string) (Book, error)
	ListByOwner(ctx context.Context, userID string) ([]Book, error)
	// ListPublishedByOwners feeds the followee feed: published books for
	// any of the given owners, newest first.
	ListPublishedByOwners(ctx context.Context, ownerIDs []string, limit int) ([]Book, error)
	SetStatus(ctx context.Context, bookID, userID, status string) error
}

// ChapterStore defines persistence for chapters.
type ChapterStore interface {
	Create(ctx context.Context, c Chapter) (Chapter, error)
	Update(ctx context.Context, c Chapter) (Chapter, error)
	Delete(ctx context.Context, chapterID, userID string) error
	Get(ctx context.Context, chapterID string) (Chapter, error)
	ListByBook(ctx context.Context, bookID string) ([]Chapter, error)
	ListPublishedByOwners(ctx context.Context, ownerIDs []string, limit int) ([]Chapter, error)
	// PublishDue flips draft chapters whose publish_at has passed to
	// published, clearing publish_at, up to limit rows. Returns the
	// chapters that changed state.
	PublishDue(ctx context.Context, now time.Time, limit int) ([]Chapter, error)
}

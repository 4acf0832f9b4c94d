package store

import (
	"context"
	"errors"
	"time"
)

// Sort orders for comment threads.
const (
	SortNew = "new"
	SortTop = "top"
)

var ErrNotFoundOrForbidden = errors.New("comment not found or not owned by user")

// Comment represents a single comment row. ChapterID is nil for comments
// left on the book itself.
type Comment struct {
	ID        string     `json:"id"`
	BookID    string     `json:"book_id"`
	ChapterID *string    `json:"chapter_id,omitempty"`
	UserID    string     `json:"user_id"`
	ParentID  *string    `json:"parent_id,omitempty"`
	Body      string     `json:"body"`
	Score     int        `json:"score"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CommentTreeNode is a root comment with its direct replies.
type CommentTreeNode struct {
	Comment Comment   `json:"comment"`
	Replies []Comment `json:"replies"`
}

// CommentStore defines the contract for comment persistence.
type CommentStore interface {
	Create(ctx context.Context, c Comment) (Comment, error)
	GetThread(ctx context.Context, bookID, sort string, limit int, cursor string) ([]CommentTreeNode, string, error)
	UpdateBody(ctx context.Context, commentID, userID, body string) error
	SoftDelete(ctx context.Context, commentID, userID string) error
	Vote(ctx context.Context, commentID, userID string, vote int16) error
}

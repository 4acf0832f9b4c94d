// Package store reads published books for the search indexer.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookDoc is the flattened form of a book that goes into the search index.
type BookDoc struct {
	BookID       string    `json:"book_id"`
	AuthorID     string    `json:"author_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Genre        string    `json:"genre"`
	Tags         []string  `json:"tags"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	ChapterCount int       `json:"chapter_count"`
	LikeCount    int       `json:"like_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BookSource loads index documents from the catalog tables.
type BookSource interface {
	// PublishedBook returns the indexable form of one book, or ok=false
	// when the book is missing, deleted, or not published.
	PublishedBook(ctx context.Context, bookID string) (BookDoc, bool, error)
	PublishedBookIDs(ctx context.Context) ([]string, error)
}

type PostgresBookSource struct {
	db *pgxpool.Pool
}

func NewPostgresBookSource(db *pgxpool.Pool) *PostgresBookSource {
	return &PostgresBookSource{db: db}
}

func (s *PostgresBookSource) PublishedBook(ctx context.Context, bookID string) (BookDoc, bool, error) {
	q := `
SELECT id::text, user_id::text, title, description, genre, tags, language, status, chapter_count, like_count, updated_at
FROM books
WHERE id = $1::uuid AND status = 'published' AND deleted_at IS NULL`
	var d BookDoc
	err := s.db.QueryRow(ctx, q, bookID).Scan(&d.BookID, &d.AuthorID, &d.Title, &d.Description,
		&d.Genre, &d.Tags, &d.Language, &d.Status, &d.ChapterCount, &d.LikeCount, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookDoc{}, false, nil
		}
		return BookDoc{}, false, err
	}
	return d, true, nil
}

func (s *PostgresBookSource) PublishedBookIDs(ctx context.Context) ([]string, error) {
	q := `SELECT id::text FROM books WHERE status = 'published' AND deleted_at IS NULL ORDER BY updated_at DESC`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

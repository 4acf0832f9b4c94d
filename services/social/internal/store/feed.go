package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedItem is one entry in a reader's followee feed: a book or chapter a
// followed author recently published.
type FeedItem struct {
	Kind        string    `json:"kind"` // "book" or "chapter"
	BookID      string    `json:"book_id"`
	ChapterID   string    `json:"chapter_id,omitempty"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// FeedSource produces recent publications for a set of authors.
type FeedSource interface {
	RecentByAuthors(ctx context.Context, authorIDs []string, limit int) ([]FeedItem, error)
}

// PostgresFeedSource reads published books and chapters from the catalog
// tables in the shared database.
type PostgresFeedSource struct {
	pool *pgxpool.Pool
}

func NewPostgresFeedSource(pool *pgxpool.Pool) *PostgresFeedSource {
	return &PostgresFeedSource{pool: pool}
}

func (s *PostgresFeedSource) RecentByAuthors(ctx context.Context, authorIDs []string, limit int) ([]FeedItem, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT kind, book_id, chapter_id, author_id, title, published_at FROM (
  SELECT 'book' AS kind, id AS book_id, '' AS chapter_id, user_id AS author_id,
         title, updated_at AS published_at
  FROM books
  WHERE status = 'published' AND user_id = ANY($1::uuid[])
  UNION ALL
  SELECT 'chapter', book_id, id, user_id, title, updated_at
  FROM chapters
  WHERE status = 'published' AND user_id = ANY($1::uuid[])
) feed
ORDER BY published_at DESC
LIMIT $2`, authorIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeedItem
	for rows.Next() {
		var it FeedItem
		if err := rows.Scan(&it.Kind, &it.BookID, &it.ChapterID, &it.AuthorID, &it.Title, &it.PublishedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

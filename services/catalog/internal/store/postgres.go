package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBookStore is the production Postgres-backed implementation.
// Record, when set, is called inside each mutating transaction so the
// queued event and the data change commit together.
type PostgresBookStore struct {
	db     *pgxpool.Pool
	Record RecordFunc
}

func NewPostgresBookStore(db *pgxpool.Pool) *PostgresBookStore {
	return &PostgresBookStore{db: db}
}

func (s *PostgresBookStore) record(ctx context.Context, tx pgx.Tx, subject string, payload any) error {
	if s.Record == nil {
		return nil
	}
	return s.Record(ctx, tx, subject, payload)
}

const bookColumns = `id, user_id, title, description, cover_url, genre, tags, status, language,
view_count, like_count, chapter_count, created_at, updated_at`

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.UserID, &b.Title, &b.Description, &b.CoverURL, &b.Genre, &b.Tags,
		&b.Status, &b.Language, &b.ViewCount, &b.LikeCount, &b.ChapterCount, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *PostgresBookStore) Create(ctx context.Context, b Book) (Book, error) {
	q := `
INSERT INTO books (id, user_id, title, description, cover_url, genre, tags, status, language, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
RETURNING ` + bookColumns
	id := uuid.NewString()
	out, err := scanBook(s.db.QueryRow(ctx, q,
		id, b.UserID, b.Title, b.Description, b.CoverURL, b.Genre, b.Tags, BookDraft, b.Language))
	if err != nil {
		return Book{}, fmt.Errorf("create book: %w", err)
	}
	return out, nil
}

func (s *PostgresBookStore) Update(ctx context.Context, b Book) (Book, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
UPDATE books SET title=$3, description=$4, cover_url=$5, genre=$6, tags=$7, language=$8, updated_at=now()
WHERE id=$1 AND user_id=$2
RETURNING ` + bookColumns
	out, err := scanBook(tx.QueryRow(ctx, q,
		b.ID, b.UserID, b.Title, b.Description, b.CoverURL, b.Genre, b.Tags, b.Language))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	if err := s.record(ctx, tx, SubjectBookUpdated, bookEvent{ID: out.ID, UserID: out.UserID, Status: out.Status}); err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	return out, nil
}

func (s *PostgresBookStore) Delete(ctx context.Context, bookID, userID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM books WHERE id=$1 AND user_id=$2`, bookID, userID)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := s.record(ctx, tx, SubjectBookDeleted, bookEvent{ID: bookID, UserID: userID}); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresBookStore) Get(ctx context.Context, bookID string) (Book, error) {
	out, err := scanBook(s.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id=$1`, bookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	return out, nil
}

func (s *PostgresBookStore) ListByOwner(ctx context.Context, userID string) ([]Book, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE user_id=$1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

func (s *PostgresBookStore) ListPublishedByOwners(ctx context.Context, ownerIDs []string, limit int) ([]Book, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT `+bookColumns+` FROM books
WHERE status='published' AND user_id = ANY($1::uuid[])
ORDER BY updated_at DESC
LIMIT $2`, ownerIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list published books: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

func (s *PostgresBookStore) SetStatus(ctx context.Context, bookID, userID, status string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("set book status: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE books SET status=$3, updated_at=now() WHERE id=$1 AND user_id=$2`, bookID, userID, status)
	if err != nil {
		return fmt.Errorf("set book status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	subject := SubjectBookUnpublished
	if status == BookPublished {
		subject = SubjectBookPublished
	}
	if err := s.record(ctx, tx, subject, bookEvent{ID: bookID, UserID: userID, Status: status}); err != nil {
		return fmt.Errorf("set book status: %w", err)
	}
	return tx.Commit(ctx)
}

func collectBooks(rows pgx.Rows) ([]Book, error) {
	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// PostgresChapterStore is the production Postgres-backed implementation.
// Record, when set, is called inside each mutating transaction so the
// queued event and the data change commit together.
type PostgresChapterStore struct {
	db     *pgxpool.Pool
	Record RecordFunc
}

func NewPostgresChapterStore(db *pgxpool.Pool) *PostgresChapterStore {
	return &PostgresChapterStore{db: db}
}

func (s *PostgresChapterStore) record(ctx context.Context, tx pgx.Tx, subject string, payload any) error {
	if s.Record == nil {
		return nil
	}
	return s.Record(ctx, tx, subject, payload)
}

const chapterColumns = `id, book_id, user_id, title, content, order_index, status, publish_at,
word_count, view_count, created_at, updated_at`

func scanChapter(row pgx.Row) (Chapter, error) {
	var c Chapter
	err := row.Scan(&c.ID, &c.BookID, &c.UserID, &c.Title, &c.Content, &c.OrderIndex,
		&c.Status, &c.PublishAt, &c.WordCount, &c.ViewCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresChapterStore) Create(ctx context.Context, c Chapter) (Chapter, error) {
	q := `
INSERT INTO chapters (id, book_id, user_id, title, content, order_index, status, publish_at, word_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
RETURNING ` + chapterColumns
	out, err := scanChapter(s.db.QueryRow(ctx, q,
		uuid.NewString(), c.BookID, c.UserID, c.Title, c.Content, c.OrderIndex, c.Status, c.PublishAt, c.WordCount))
	if err != nil {
		return Chapter{}, fmt.Errorf("create chapter: %w", err)
	}
	return out, nil
}

func (s *PostgresChapterStore) Update(ctx context.Context, c Chapter) (Chapter, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Chapter{}, fmt.Errorf("update chapter: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
UPDATE chapters SET title=$3, content=$4, order_index=$5, status=$6, publish_at=$7, word_count=$8, updated_at=now()
WHERE id=$1 AND user_id=$2
RETURNING ` + chapterColumns
	out, err := scanChapter(tx.QueryRow(ctx, q,
		c.ID, c.UserID, c.Title, c.Content, c.OrderIndex, c.Status, c.PublishAt, c.WordCount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chapter{}, ErrNotFound
		}
		return Chapter{}, fmt.Errorf("update chapter: %w", err)
	}
	if err := s.record(ctx, tx, SubjectChapterUpdated, chapterEvent{ID: out.ID, BookID: out.BookID, UserID: out.UserID}); err != nil {
		return Chapter{}, fmt.Errorf("update chapter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Chapter{}, fmt.Errorf("update chapter: %w", err)
	}
	return out, nil
}

func (s *PostgresChapterStore) Delete(ctx context.Context, chapterID, userID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var bookID string
	err = tx.QueryRow(ctx,
		`DELETE FROM chapters WHERE id=$1 AND user_id=$2 RETURNING book_id`, chapterID, userID).Scan(&bookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete chapter: %w", err)
	}
	if err := s.record(ctx, tx, SubjectChapterDeleted, chapterEvent{ID: chapterID, BookID: bookID, UserID: userID}); err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresChapterStore) Get(ctx context.Context, chapterID string) (Chapter, error) {
	out, err := scanChapter(s.db.QueryRow(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE id=$1`, chapterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chapter{}, ErrNotFound
		}
		return Chapter{}, fmt.Errorf("get chapter: %w", err)
	}
	return out, nil
}

func (s *PostgresChapterStore) ListByBook(ctx context.Context, bookID string) ([]Chapter, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE book_id=$1 ORDER BY order_index ASC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()
	return collectChapters(rows)
}

func (s *PostgresChapterStore) ListPublishedByOwners(ctx context.Context, ownerIDs []string, limit int) ([]Chapter, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT `+chapterColumns+` FROM chapters
WHERE status='published' AND user_id = ANY($1::uuid[])
ORDER BY updated_at DESC
LIMIT $2`, ownerIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("list published chapters: %w", err)
	}
	defer rows.Close()
	return collectChapters(rows)
}

// PublishDue flips due drafts in a single statement so concurrent
// scheduler instances never double-publish a chapter. The per-chapter
// record calls share the transaction, so the status flip and its event
// land atomically.
func (s *PostgresChapterStore) PublishDue(ctx context.Context, now time.Time, limit int) ([]Chapter, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("publish due chapters: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
UPDATE chapters SET status='published', publish_at=NULL, updated_at=$1
WHERE id IN (
  SELECT id FROM chapters
  WHERE status='draft' AND publish_at IS NOT NULL AND publish_at <= $1
  ORDER BY publish_at
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + chapterColumns
	rows, err := tx.Query(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("publish due chapters: %w", err)
	}
	out, err := collectChapters(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, c := range out {
		if err := s.record(ctx, tx, SubjectChapterPublished, c); err != nil {
			return nil, fmt.Errorf("publish due chapters: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("publish due chapters: %w", err)
	}
	return out, nil
}

func collectChapters(rows pgx.Rows) ([]Chapter, error) {
	var out []Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package export

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

// PostgresSource reads every export section straight from the shared
// database.
type PostgresSource struct {
	db *pgxpool.Pool
}

func NewPostgresSource(db *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) User(ctx context.Context, userID string) (User, error) {
	q := `
SELECT id::text, email, username, coalesce(display_name, ''), coalesce(bio, ''), coalesce(avatar_url, ''), created_at
FROM users WHERE id = $1::uuid`
	var u User
	err := s.db.QueryRow(ctx, q, userID).Scan(&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.Bio, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (s *PostgresSource) Books(ctx context.Context, userID string) ([]Book, error) {
	q := `
SELECT id::text, title, description, genre, status, created_at
FROM books WHERE user_id = $1::uuid AND deleted_at IS NULL
ORDER BY created_at`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Description, &b.Genre, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Chapters(ctx context.Context, userID string) ([]Chapter, error) {
	q := `
SELECT id::text, book_id::text, title, content, status, word_count, created_at
FROM chapters WHERE user_id = $1::uuid
ORDER BY created_at`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.BookID, &c.Title, &c.Content, &c.Status, &c.WordCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Comments(ctx context.Context, userID string) ([]Comment, error) {
	q := `
SELECT id::text, book_id::text, body, created_at
FROM comments WHERE user_id = $1::uuid AND deleted_at IS NULL
ORDER BY created_at`
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.BookID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresSource) Following(ctx context.Context, userID string) ([]string, error) {
	return s.idList(ctx, `SELECT followee_id::text FROM follows WHERE follower_id = $1::uuid ORDER BY created_at`, userID)
}

func (s *PostgresSource) Followers(ctx context.Context, userID string) ([]string, error) {
	return s.idList(ctx, `SELECT follower_id::text FROM follows WHERE followee_id = $1::uuid ORDER BY created_at`, userID)
}

func (s *PostgresSource) idList(ctx context.Context, q, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

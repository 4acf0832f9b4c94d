// Package deleter removes every trace of a user once a deletion
// request's grace period has run out.
package deleter

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDeleter struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *PostgresDeleter {
	return &PostgresDeleter{db: db}
}

// Ordered so child rows go before their parents. All statements run in
// one transaction; a partial purge must not survive a crash.
var purgeStatements = []string{
	`DELETE FROM comment_votes WHERE user_id = $1::uuid`,
	`DELETE FROM comment_votes WHERE comment_id IN (SELECT id FROM comments WHERE user_id = $1::uuid)`,
	`DELETE FROM comments WHERE user_id = $1::uuid`,
	`DELETE FROM comments WHERE book_id IN (SELECT id FROM books WHERE user_id = $1::uuid)`,
	`DELETE FROM book_likes WHERE user_id = $1::uuid`,
	`DELETE FROM book_likes WHERE book_id IN (SELECT id FROM books WHERE user_id = $1::uuid)`,
	`DELETE FROM follows WHERE follower_id = $1::uuid OR followee_id = $1::uuid`,
	`DELETE FROM reading_progress WHERE user_id = $1`,
	`DELETE FROM chapters WHERE user_id = $1::uuid`,
	`DELETE FROM books WHERE user_id = $1::uuid`,
	`DELETE FROM data_requests WHERE user_id = $1::uuid`,
	`DELETE FROM refresh_sessions WHERE user_id = $1::uuid`,
	`DELETE FROM users WHERE id = $1::uuid`,
}

func (d *PostgresDeleter) Delete(ctx context.Context, userID string) error {
	tx, err := d.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, q := range purgeStatements {
		if _, err := tx.Exec(ctx, q, userID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

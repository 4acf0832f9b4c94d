package store

import (
	"context"
	"errors"
	"testing"
)

func mkComment(t *testing.T, s CommentStore, bookID, userID, body string, parentID *string) Comment {
	t.Helper()
	c, err := s.Create(context.Background(), Comment{
		BookID: bookID, UserID: userID, Body: body, ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return c
}

func TestThreadGroupsReplies(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	root := mkComment(t, s, "book-1", "u1", "loved this chapter", nil)
	mkComment(t, s, "book-1", "u2", "same here", &root.ID)
	mkComment(t, s, "book-1", "u3", "ending surprised me", &root.ID)
	mkComment(t, s, "book-2", "u4", "different book", nil)

	nodes, cursor, err := s.GetThread(ctx, "book-1", SortNew, 50, "")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if cursor != "" {
		t.Fatalf("unexpected cursor %q", cursor)
	}
	if len(nodes) != 1 {
		t.Fatalf("roots = %d, want 1", len(nodes))
	}
	if len(nodes[0].Replies) != 2 {
		t.Fatalf("replies = %d, want 2", len(nodes[0].Replies))
	}
}

func TestThreadPagination(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mkComment(t, s, "book-1", "u1", "comment", nil)
	}

	first, cursor, err := s.GetThread(ctx, "book-1", SortNew, 3, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 3 || cursor == "" {
		t.Fatalf("first page len = %d cursor = %q", len(first), cursor)
	}

	second, _, err := s.GetThread(ctx, "book-1", SortNew, 3, cursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("second page len = %d, want 2", len(second))
	}

	seen := make(map[string]bool)
	for _, n := range append(first, second...) {
		if seen[n.Comment.ID] {
			t.Fatalf("comment %s returned twice", n.Comment.ID)
		}
		seen[n.Comment.ID] = true
	}
}

func TestVoteAdjustsScore(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()
	c := mkComment(t, s, "book-1", "u1", "hot take", nil)

	if err := s.Vote(ctx, c.ID, "u2", 1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := s.Vote(ctx, c.ID, "u3", 1); err != nil {
		t.Fatalf("vote: %v", err)
	}
	// Changing a vote replaces it instead of stacking.
	if err := s.Vote(ctx, c.ID, "u2", -1); err != nil {
		t.Fatalf("revote: %v", err)
	}

	nodes, _, _ := s.GetThread(ctx, "book-1", SortTop, 50, "")
	if nodes[0].Comment.Score != 0 {
		t.Fatalf("score = %d, want 0", nodes[0].Comment.Score)
	}
}

func TestUpdateAndDeleteRequireOwnership(t *testing.T) {
	s := NewInMemoryCommentStore()
	ctx := context.Background()
	c := mkComment(t, s, "book-1", "u1", "original", nil)

	if err := s.UpdateBody(ctx, c.ID, "u2", "hijack"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}
	if err := s.SoftDelete(ctx, c.ID, "u2"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}

	if err := s.SoftDelete(ctx, c.ID, "u1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	nodes, _, _ := s.GetThread(ctx, "book-1", SortNew, 50, "")
	if nodes[0].Comment.Body != "[deleted]" {
		t.Fatalf("body = %q, want [deleted]", nodes[0].Comment.Body)
	}
	if err := s.UpdateBody(ctx, c.ID, "u1", "resurrect"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("deleted comment should not be editable, got %v", err)
	}
}

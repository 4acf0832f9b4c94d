package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/social/internal/store"
)

func setupReq(method, target, body, userID string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != "" {
		ctx = auth.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

func TestCreateCommentAndThread(t *testing.T) {
	cs := store.NewInMemoryCommentStore()

	rr := httptest.NewRecorder()
	CreateComment(cs)(rr, setupReq(http.MethodPost, "/v1/comments/book-1",
		`{"body":"what a cliffhanger"}`, "u1", map[string]string{"book_id": "book-1"}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var created store.Comment
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	if created.BookID != "book-1" || created.UserID != "u1" {
		t.Fatalf("unexpected comment: %+v", created)
	}

	rr = httptest.NewRecorder()
	GetThread(cs)(rr, setupReq(http.MethodGet, "/v1/comments/book-1", "", "", map[string]string{"book_id": "book-1"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("thread status = %d", rr.Code)
	}
	var resp threadResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Comments) != 1 {
		t.Fatalf("thread len = %d, want 1", len(resp.Comments))
	}
}

func TestCreateCommentRejectsEmptyBody(t *testing.T) {
	rr := httptest.NewRecorder()
	CreateComment(store.NewInMemoryCommentStore())(rr, setupReq(http.MethodPost, "/v1/comments/book-1",
		`{"body":"   "}`, "u1", map[string]string{"book_id": "book-1"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestVoteCommentValidation(t *testing.T) {
	cs := store.NewInMemoryCommentStore()
	c, _ := cs.Create(context.Background(), store.Comment{BookID: "book-1", UserID: "u1", Body: "x"})

	rr := httptest.NewRecorder()
	VoteComment(cs)(rr, setupReq(http.MethodPost, "/v1/comments/"+c.ID+"/vote",
		`{"vote":5}`, "u2", map[string]string{"comment_id": c.ID}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	VoteComment(cs)(rr, setupReq(http.MethodPost, "/v1/comments/"+c.ID+"/vote",
		`{"vote":1}`, "u2", map[string]string{"comment_id": c.ID}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}

func TestLikeFlow(t *testing.T) {
	ls := store.NewInMemoryLikeStore()

	rr := httptest.NewRecorder()
	LikeBook(ls, nil)(rr, setupReq(http.MethodPut, "/v1/likes/book-1", "", "u1", map[string]string{"book_id": "book-1"}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("like status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	GetLikes(ls)(rr, setupReq(http.MethodGet, "/v1/likes/book-1", "", "u1", map[string]string{"book_id": "book-1"}))
	var sum store.LikeSummary
	_ = json.Unmarshal(rr.Body.Bytes(), &sum)
	if sum.Total != 1 || !sum.Liked {
		t.Fatalf("summary = %+v", sum)
	}

	rr = httptest.NewRecorder()
	UnlikeBook(ls)(rr, setupReq(http.MethodDelete, "/v1/likes/book-1", "", "u1", map[string]string{"book_id": "book-1"}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unlike status = %d", rr.Code)
	}
}

func TestFollowEndpoints(t *testing.T) {
	fs := store.NewInMemoryFollowStore()

	rr := httptest.NewRecorder()
	FollowAuthor(fs, nil)(rr, setupReq(http.MethodPut, "/v1/follows/author-1", "", "reader", map[string]string{"author_id": "author-1"}))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("follow status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	FollowAuthor(fs, nil)(rr, setupReq(http.MethodPut, "/v1/follows/reader", "", "reader", map[string]string{"author_id": "reader"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("self-follow status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	ListFollowing(fs)(rr, setupReq(http.MethodGet, "/v1/follows", "", "reader", nil))
	var resp struct {
		Following []string `json:"following"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Following) != 1 || resp.Following[0] != "author-1" {
		t.Fatalf("following = %v", resp.Following)
	}

	rr = httptest.NewRecorder()
	GetFollowerCount(fs)(rr, setupReq(http.MethodGet, "/v1/follows/author-1/count", "", "", map[string]string{"author_id": "author-1"}))
	var count struct {
		Followers int `json:"followers"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &count)
	if count.Followers != 1 {
		t.Fatalf("followers = %d, want 1", count.Followers)
	}
}

type fakeFeedSource struct {
	items []store.FeedItem
	asked []string
}

func (f *fakeFeedSource) RecentByAuthors(_ context.Context, authorIDs []string, _ int) ([]store.FeedItem, error) {
	f.asked = authorIDs
	return f.items, nil
}

func TestFeedUsesFollowedAuthors(t *testing.T) {
	fs := store.NewInMemoryFollowStore()
	_ = fs.Follow(context.Background(), "reader", "author-1")

	src := &fakeFeedSource{items: []store.FeedItem{{
		Kind: "chapter", BookID: "b1", ChapterID: "c1", AuthorID: "author-1",
		Title: "Chapter Nine", PublishedAt: time.Now().UTC(),
	}}}

	rr := httptest.NewRecorder()
	GetFeed(fs, src)(rr, setupReq(http.MethodGet, "/v1/feed", "", "reader", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(src.asked) != 1 || src.asked[0] != "author-1" {
		t.Fatalf("feed queried authors %v", src.asked)
	}
	var resp feedResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Items) != 1 || resp.Items[0].ChapterID != "c1" {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestFeedEmptyWhenFollowingNobody(t *testing.T) {
	src := &fakeFeedSource{}
	rr := httptest.NewRecorder()
	GetFeed(store.NewInMemoryFollowStore(), src)(rr, setupReq(http.MethodGet, "/v1/feed", "", "reader", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if src.asked != nil {
		t.Fatalf("feed source queried with no followees")
	}
}

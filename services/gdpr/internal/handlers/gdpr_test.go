package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/services/gdpr/internal/export"
	"github.com/example/virexbooks/services/gdpr/internal/store"
)

const testUserID = "7b0e3c1a-93d4-4c5c-8a52-0fb1a9d6e001"

type fakeSource struct {
	user export.User
}

func (f *fakeSource) User(_ context.Context, userID string) (export.User, error) {
	if userID != f.user.ID {
		return export.User{}, export.ErrUserNotFound
	}
	return f.user, nil
}
func (f *fakeSource) Books(context.Context, string) ([]export.Book, error) {
	return []export.Book{{ID: "b1", Title: "Ash Garden", Status: "published"}}, nil
}
func (f *fakeSource) Chapters(context.Context, string) ([]export.Chapter, error) { return nil, nil }
func (f *fakeSource) Comments(context.Context, string) ([]export.Comment, error) { return nil, nil }
func (f *fakeSource) Following(context.Context, string) ([]string, error)        { return nil, nil }
func (f *fakeSource) Followers(context.Context, string) ([]string, error)        { return nil, nil }

func newSource() *fakeSource {
	return &fakeSource{user: export.User{
		ID:        testUserID,
		Email:     "reader@example.com",
		Username:  "reader_one",
		CreatedAt: time.Now().UTC(),
	}}
}

func setupReq(method, target string, body any, userID string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "203.0.113.9:51000"
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	return req
}

func TestCreateDataRequestDefaultsToArticle15(t *testing.T) {
	requests := store.NewInMemoryDataRequestStore()
	h := CreateDataRequest(requests, newSource(), 30*24*time.Hour, nil)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/gdpr/data-requests", nil, testUserID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var created store.DataRequest
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.RequestType != store.RequestAccess {
		t.Fatalf("request_type = %q, want %q", created.RequestType, store.RequestAccess)
	}
	if created.Status != store.DataPending {
		t.Fatalf("status = %q, want pending", created.Status)
	}
	if created.Email != "reader@example.com" {
		t.Fatalf("email = %q", created.Email)
	}
	want := created.RequestedAt.Add(30 * 24 * time.Hour)
	if !created.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", created.ExpiresAt, want)
	}
}

func TestCreateDataRequestRejectsUnknownType(t *testing.T) {
	requests := store.NewInMemoryDataRequestStore()
	h := CreateDataRequest(requests, newSource(), time.Hour, nil)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/gdpr/data-requests", map[string]string{"request_type": "article_99"}, testUserID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCreateDataRequestRequiresAuth(t *testing.T) {
	requests := store.NewInMemoryDataRequestStore()
	h := CreateDataRequest(requests, newSource(), time.Hour, nil)

	rr := httptest.NewRecorder()
	h(rr, setupReq(http.MethodPost, "/v1/gdpr/data-requests", nil, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestListDataRequests(t *testing.T) {
	requests := store.NewInMemoryDataRequestStore()
	now := time.Now().UTC()
	for _, typ := range []string{store.RequestAccess, store.RequestExport} {
		if _, err := requests.Create(context.Background(), store.DataRequest{
			UserID: testUserID, RequestType: typ, RequestedAt: now, ExpiresAt: now.Add(time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	ListDataRequests(requests)(rr, setupReq(http.MethodGet, "/v1/gdpr/data-requests", nil, testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Requests []store.DataRequest `json:"requests"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Requests) != 2 {
		t.Fatalf("len = %d, want 2", len(resp.Requests))
	}
}

func TestExportData(t *testing.T) {
	builder := export.NewBuilder(newSource())

	rr := httptest.NewRecorder()
	ExportData(builder, nil)(rr, setupReq(http.MethodGet, "/v1/gdpr/export", nil, testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	var data export.UserDataExport
	if err := json.Unmarshal(rr.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.User.Email != "reader@example.com" {
		t.Fatalf("user email = %q", data.User.Email)
	}
	if len(data.Books) != 1 || data.Books[0].Title != "Ash Garden" {
		t.Fatalf("books = %+v", data.Books)
	}
	if data.Chapters == nil || data.Following == nil {
		t.Fatal("empty sections must serialize as arrays, not null")
	}
	if !data.Compliance.PersonalDataIncluded {
		t.Fatal("compliance flag not set")
	}
}

func TestExportDataUnknownUser(t *testing.T) {
	builder := export.NewBuilder(newSource())

	rr := httptest.NewRecorder()
	ExportData(builder, nil)(rr, setupReq(http.MethodGet, "/v1/gdpr/export", nil, "f3a2c7d0-0000-0000-0000-000000000000"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeletionRequestLifecycle(t *testing.T) {
	deletions := store.NewInMemoryDeletionRequestStore()
	src := newSource()
	grace := 14 * 24 * time.Hour

	rr := httptest.NewRecorder()
	RequestDeletion(deletions, src, grace)(rr, setupReq(http.MethodPost, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	var created store.DeletionRequest
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	want := created.RequestedAt.Add(grace)
	if !created.ScheduledDeletionAt.Equal(want) {
		t.Fatalf("scheduled_deletion_at = %v, want %v", created.ScheduledDeletionAt, want)
	}

	// a second request while one is pending conflicts
	rr = httptest.NewRecorder()
	RequestDeletion(deletions, src, grace)(rr, setupReq(http.MethodPost, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rr.Code)
	}

	rr = httptest.NewRecorder()
	GetDeletionRequest(deletions)(rr, setupReq(http.MethodGet, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	CancelDeletion(deletions)(rr, setupReq(http.MethodDelete, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	GetDeletionRequest(deletions)(rr, setupReq(http.MethodGet, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after cancel status = %d, want 404", rr.Code)
	}

	rr = httptest.NewRecorder()
	CancelDeletion(deletions)(rr, setupReq(http.MethodDelete, "/v1/gdpr/deletion-request", nil, testUserID))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cancel again status = %d, want 404", rr.Code)
	}
}

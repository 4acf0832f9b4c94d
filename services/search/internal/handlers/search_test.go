package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/virexbooks/services/search/internal/meili"
)

type fakeSearcher struct {
	gotIndex   string
	gotPayload map[string]any
	resp       meili.SearchResponse
	err        error
}

func (f *fakeSearcher) Search(_ context.Context, index string, payload any) (meili.SearchResponse, error) {
	f.gotIndex = index
	f.gotPayload, _ = payload.(map[string]any)
	return f.resp, f.err
}

func TestSearchBooksReturnsHits(t *testing.T) {
	hit, _ := json.Marshal(map[string]any{
		"book_id": "b1",
		"title":   "Ash Garden",
		"genre":   "fantasy",
	})
	fs := &fakeSearcher{resp: meili.SearchResponse{Hits: []json.RawMessage{hit}, EstimatedTotalHits: 1}}

	rr := httptest.NewRecorder()
	SearchBooks(fs, nil)(rr, httptest.NewRequest(http.MethodGet, "/v1/search?q=ash", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if fs.gotIndex != "books" {
		t.Fatalf("index = %q, want books", fs.gotIndex)
	}
	if fs.gotPayload["q"] != "ash" {
		t.Fatalf("q = %v", fs.gotPayload["q"])
	}

	var out struct {
		Hits  []map[string]any `json:"hits"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Hits) != 1 || out.Hits[0]["title"] != "Ash Garden" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestSearchBooksEmptyHitsSerializeAsArray(t *testing.T) {
	fs := &fakeSearcher{}

	rr := httptest.NewRecorder()
	SearchBooks(fs, nil)(rr, httptest.NewRequest(http.MethodGet, "/v1/search?q=nothing", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if string(out["hits"]) != "[]" {
		t.Fatalf("hits = %s, want []", out["hits"])
	}
}

func TestQueryFilter(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want string
	}{
		{"none", Query{}, ""},
		{"genre", Query{Genre: "fantasy"}, `genre = "fantasy"`},
		{"all", Query{Genre: "fantasy", Tag: "dragons", Language: "en"},
			`genre = "fantasy" AND tags = "dragons" AND language = "en"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.Filter(); got != tc.want {
				t.Fatalf("Filter() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseQueryClampsLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x&limit=500&offset=-2", nil)
	q := parseQuery(req)
	if q.Limit != 100 {
		t.Fatalf("limit = %d, want 100", q.Limit)
	}
	if q.Offset != 0 {
		t.Fatalf("offset = %d, want 0", q.Offset)
	}
}

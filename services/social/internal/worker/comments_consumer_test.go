package worker

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/virexbooks/services/social/internal/store"
)

type memDedup struct {
	seen map[string]bool
}

func (d *memDedup) Check(_ context.Context, id string) (bool, error) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	dup := d.seen[id]
	d.seen[id] = true
	return dup, nil
}

func msg(subject, data string) *nats.Msg {
	return &nats.Msg{Subject: subject, Data: []byte(data)}
}

func TestHandleCreateEvent(t *testing.T) {
	cs := store.NewInMemoryCommentStore()
	err := handleMessage(context.Background(),
		msg("social.comments.create", `{"event_id":"e1","user_id":"u1","book_id":"b1","body":"great chapter"}`),
		cs, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	nodes, _, _ := cs.GetThread(context.Background(), "b1", store.SortNew, 10, "")
	if len(nodes) != 1 || nodes[0].Comment.Body != "great chapter" {
		t.Fatalf("comment not created: %+v", nodes)
	}
}

func TestHandleDuplicateEventSkipped(t *testing.T) {
	cs := store.NewInMemoryCommentStore()
	dedup := &memDedup{}
	ev := `{"event_id":"e1","user_id":"u1","book_id":"b1","body":"once"}`

	for i := 0; i < 2; i++ {
		if err := handleMessage(context.Background(), msg("social.comments.create", ev), cs, dedup, zap.NewNop()); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	nodes, _, _ := cs.GetThread(context.Background(), "b1", store.SortNew, 10, "")
	if len(nodes) != 1 {
		t.Fatalf("duplicate applied, comments = %d", len(nodes))
	}
}

func TestHandleMalformedEventDropped(t *testing.T) {
	err := handleMessage(context.Background(),
		msg("social.comments.create", `{not json`),
		store.NewInMemoryCommentStore(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("malformed event should be dropped, got %v", err)
	}
}

func TestHandleVoteOnMissingCommentDropped(t *testing.T) {
	err := handleMessage(context.Background(),
		msg("social.comments.vote", `{"event_id":"e2","user_id":"u1","comment_id":"nope","vote":1}`),
		store.NewInMemoryCommentStore(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("vote on missing comment should be dropped, got %v", err)
	}
}

package actions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ASI-Josh/asiportal/internal/docseq"
	"github.com/ASI-Josh/asiportal/internal/mailer"
	"github.com/ASI-Josh/asiportal/internal/storage"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeDrafter struct {
	mu    sync.Mutex
	reqs  []workflow.Request
	draft DocumentDraft
	err   error
}

func (f *fakeDrafter) Run(_ context.Context, req workflow.Request, out any) error {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	b, err := json.Marshal(f.draft)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

type fakePublisher struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *fakePublisher) Post(ctx context.Context, _ SocialPostPayload) (SocialPostResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return SocialPostResult{}, f.err
	}
	return SocialPostResult{Endpoint: "fake", Status: 201, ID: "urn:li:share:1"}, nil
}

var errPostRejected = errors.New("post rejected")

// testDeps wires handlers to an in-memory store with fast step retries.
func testDeps(store *storage.Store) Deps {
	return Deps{
		Store:        store,
		Allocator:    docseq.NewAllocator(store),
		Drafter:      &fakeDrafter{draft: sampleDraft()},
		Outbox:       mailer.NewOutbox(store),
		Social:       &fakePublisher{},
		PortalURL:    "https://portal.example.com/",
		StepAttempts: 3,
		StepBackoff:  time.Millisecond,
		Now:          func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) },
	}
}

func sampleDraft() DocumentDraft {
	return DocumentDraft{
		Title:   "Chemical Handling Policy",
		Purpose: "Define safe chemical handling.",
		Scope:   "All workshop staff.",
		Sections: []DraftSection{
			{Heading: "Storage", Body: "Store chemicals in bunded cabinets."},
		},
		References: []string{"ISO 45001"},
	}
}

func newTestQueue(t *testing.T, mutate func(*Deps)) (*Queue, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	d := testDeps(store)
	if mutate != nil {
		mutate(&d)
	}
	return NewQueue(store, NewRegistry(d)), store
}

func agent(id string) storage.Requester {
	return storage.Requester{AgentID: id, Name: id}
}

func propose(t *testing.T, q *Queue, kind Kind, payload string) storage.Action {
	t.Helper()
	a, err := q.Propose(context.Background(), Proposal{
		ActionType:  string(kind),
		Payload:     json.RawMessage(payload),
		RequestedBy: agent("ops"),
	})
	if err != nil {
		t.Fatalf("Propose(%s): %v", kind, err)
	}
	return a
}

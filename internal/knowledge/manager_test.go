package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu      sync.Mutex
	updates []storage.KnowledgeUpdate

	recentCalls int
}

func (m *mockStore) InsertKnowledgeUpdates(_ context.Context, updates []storage.KnowledgeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updates...)
	return nil
}

func (m *mockStore) RecentKnowledge(_ context.Context, scope string, limit int) ([]storage.KnowledgeUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentCalls++
	var out []storage.KnowledgeUpdate
	for i := len(m.updates) - 1; i >= 0 && len(out) < limit; i-- {
		if scope == "" || m.updates[i].Scope == scope {
			out = append(out, m.updates[i])
		}
	}
	return out, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func TestRecordValidatesScope(t *testing.T) {
	mgr := NewManager(&mockStore{})

	_, err := mgr.Record(context.Background(), "ops", []Item{{Summary: "x", Scope: "finance"}})
	if !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("error = %v, want ErrInvalidScope", err)
	}
}

func TestRecordNormalizes(t *testing.T) {
	store := &mockStore{}
	mgr := NewManager(store)

	got, err := mgr.Record(context.Background(), "ops", []Item{
		{Summary: "  Bay 3 resealed ", Tags: []string{"Facility", "facility", ""}, Scope: "TECH"},
		{Summary: "   ", Scope: "admin"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("recorded %d updates, want 1", len(got))
	}
	u := got[0]
	if u.Summary != "Bay 3 resealed" || u.Scope != "tech" || len(u.Tags) != 1 || u.Tags[0] != "facility" {
		t.Errorf("update = %+v", u)
	}
	if u.ID == "" || u.CreatedBy != "ops" {
		t.Errorf("update missing id or author: %+v", u)
	}
}

func TestSummaryByScope(t *testing.T) {
	mgr := NewManager(&mockStore{})
	ctx := context.Background()

	mgr.Record(ctx, "compliance", []Item{{Summary: "Audit due in May", Scope: "admin"}})
	mgr.Record(ctx, "ops", []Item{{Summary: "Bay 3 resealed", Tags: []string{"facility"}, Scope: "tech"}})

	tech, err := mgr.Summary(ctx, ScopeTech)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(tech, "Bay 3 resealed [facility] (ops,") {
		t.Errorf("tech summary = %q", tech)
	}
	if strings.Contains(tech, "Audit") {
		t.Errorf("tech summary leaked admin knowledge: %q", tech)
	}

	all, err := mgr.Summary(ctx, "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.HasPrefix(all, "- Bay 3 resealed") {
		t.Errorf("summary should list newest first: %q", all)
	}
}

func TestSummaryBudget(t *testing.T) {
	store := &mockStore{}
	mgr := NewManager(store)
	ctx := context.Background()

	items := make([]Item, 30)
	for i := range items {
		items[i] = Item{Summary: strings.Repeat("long fact ", 20), Scope: "admin"}
	}
	if _, err := mgr.Record(ctx, "compliance", items); err != nil {
		t.Fatalf("Record: %v", err)
	}

	s, err := mgr.Summary(ctx, ScopeAdmin)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(s) > maxSummaryChars {
		t.Errorf("summary length %d exceeds %d", len(s), maxSummaryChars)
	}
}

func TestCacheTTL(t *testing.T) {
	store := &mockStore{}
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, 60*time.Second)
	ctx := context.Background()

	mgr.Summary(ctx, ScopeAdmin)
	mgr.Summary(ctx, ScopeAdmin)

	store.mu.Lock()
	calls := store.recentCalls
	store.mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 store call (cache hit on second), got %d", calls)
	}

	clock.Advance(61 * time.Second)
	mgr.Summary(ctx, ScopeAdmin)

	store.mu.Lock()
	calls = store.recentCalls
	store.mu.Unlock()

	if calls != 2 {
		t.Errorf("expected 2 store calls (cache expired), got %d", calls)
	}
}

func TestRecordInvalidatesCache(t *testing.T) {
	store := &mockStore{}
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, clock, time.Hour)
	ctx := context.Background()

	before, _ := mgr.Summary(ctx, ScopeTech)
	if before != "" {
		t.Fatalf("expected empty summary, got %q", before)
	}

	mgr.Record(ctx, "ops", []Item{{Summary: "Compressor serviced", Scope: "tech"}})

	after, err := mgr.Summary(ctx, ScopeTech)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if !strings.Contains(after, "Compressor serviced") {
		t.Errorf("summary after record = %q", after)
	}
}

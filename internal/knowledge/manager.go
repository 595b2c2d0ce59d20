// Package knowledge keeps the append-only memory that agents write to and
// read back in later prompts.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

// Scopes a knowledge update can belong to.
const (
	ScopeAdmin = "admin"
	ScopeTech  = "tech"
)

// ErrInvalidScope is returned for updates outside the known scopes.
var ErrInvalidScope = errors.New("invalid knowledge scope")

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	InsertKnowledgeUpdates(ctx context.Context, updates []storage.KnowledgeUpdate) error
	RecentKnowledge(ctx context.Context, scope string, limit int) ([]storage.KnowledgeUpdate, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Item is a knowledge update as proposed by an agent.
type Item struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Scope   string   `json:"scope" jsonschema:"enum=admin,enum=tech"`
}

const (
	summaryLimit    = 20
	maxSummaryChars = 2000
)

type cacheEntry struct {
	text     string
	cachedAt time.Time
}

// Manager records knowledge updates and serves cached per-scope summaries.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu     sync.RWMutex
	cached map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		cached: make(map[string]cacheEntry),
	}
}

// Record validates and appends items, attributing them to createdBy.
// Items with an empty summary are skipped. The cache is invalidated.
func (m *Manager) Record(ctx context.Context, createdBy string, items []Item) ([]storage.KnowledgeUpdate, error) {
	now := m.clock.Now().UTC()
	updates := make([]storage.KnowledgeUpdate, 0, len(items))
	for _, it := range items {
		summary := strings.TrimSpace(it.Summary)
		if summary == "" {
			continue
		}
		scope := strings.ToLower(strings.TrimSpace(it.Scope))
		if scope != ScopeAdmin && scope != ScopeTech {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, it.Scope)
		}
		updates = append(updates, storage.KnowledgeUpdate{
			ID:        idgen.New(),
			Summary:   summary,
			Tags:      normalizeTags(it.Tags),
			Scope:     scope,
			CreatedAt: now,
			CreatedBy: createdBy,
		})
	}
	if len(updates) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.InsertKnowledgeUpdates(ctx, updates); err != nil {
		return nil, fmt.Errorf("recording knowledge: %w", err)
	}
	clear(m.cached)
	return updates, nil
}

// Summary returns a compact rendering of the newest updates for scope,
// suitable for a prompt. An empty scope covers every scope.
func (m *Manager) Summary(ctx context.Context, scope string) (string, error) {
	m.mu.RLock()
	if e, ok := m.cached[scope]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.text, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.cached[scope]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return e.text, nil
	}

	updates, err := m.store.RecentKnowledge(ctx, scope, summaryLimit)
	if err != nil {
		return "", fmt.Errorf("loading knowledge: %w", err)
	}
	text := summarize(updates)
	m.cached[scope] = cacheEntry{text: text, cachedAt: m.clock.Now()}
	return text, nil
}

// summarize renders updates newest first, one per line, capped at maxSummaryChars.
func summarize(updates []storage.KnowledgeUpdate) string {
	var sb strings.Builder
	for _, u := range updates {
		line := "- " + u.Summary
		if len(u.Tags) > 0 {
			line += " [" + strings.Join(u.Tags, ", ") + "]"
		}
		line += fmt.Sprintf(" (%s, %s)\n", u.CreatedBy, u.CreatedAt.Format("2006-01-02"))
		if sb.Len()+len(line) > maxSummaryChars {
			break
		}
		sb.WriteString(line)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

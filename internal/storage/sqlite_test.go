package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_actions_status_created", "idx_messages_thread_created", "idx_jobs_status_run_after", "idx_recipients_email"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("002_outbox.sql")
	if err != nil {
		t.Fatalf("parseMigrationVersion failed: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}
	if _, err := parseMigrationVersion("outbox.sql"); err == nil {
		t.Error("expected error for filename without version")
	}
}

func newTestAction(id string) Action {
	return Action{
		ID:          id,
		Status:      "pending",
		ActionType:  "ims.corrective_action.raise",
		Summary:     "raise CAPA",
		Payload:     json.RawMessage(`{"title":"Spill"}`),
		RequestedBy: Requester{AgentID: "compliance", Name: "Compliance"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestActionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertAction(ctx, newTestAction("a1")); err != nil {
		t.Fatalf("InsertAction failed: %v", err)
	}

	got, err := s.GetAction(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAction failed: %v", err)
	}
	if got.Status != "pending" {
		t.Errorf("Status = %q, want %q", got.Status, "pending")
	}
	if got.RequestedBy.AgentID != "compliance" {
		t.Errorf("RequestedBy.AgentID = %q, want %q", got.RequestedBy.AgentID, "compliance")
	}
	if string(got.Payload) != `{"title":"Spill"}` {
		t.Errorf("Payload = %s", got.Payload)
	}
	if got.Execution != nil || got.DecidedAt != nil {
		t.Errorf("expected undecided action, got %+v", got)
	}

	if _, err := s.GetAction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAction(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTransitionAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertAction(ctx, newTestAction("a1")); err != nil {
		t.Fatalf("InsertAction failed: %v", err)
	}

	decidedAt := time.Now().UTC()
	if err := s.TransitionAction(ctx, "a1", "pending", "approved", ActionUpdate{DecidedBy: "admin-1", DecidedAt: decidedAt}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// A second claim on the same action must lose.
	err := s.TransitionAction(ctx, "a1", "pending", "approved", ActionUpdate{DecidedBy: "admin-2", DecidedAt: decidedAt})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second claim error = %v, want ErrConflict", err)
	}

	out := json.RawMessage(`{"recordId":"r1"}`)
	if err := s.TransitionAction(ctx, "a1", "approved", "executed", ActionUpdate{Execution: &Execution{Output: out}}); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	got, err := s.GetAction(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAction failed: %v", err)
	}
	if got.Status != "executed" {
		t.Errorf("Status = %q, want executed", got.Status)
	}
	if got.DecidedBy != "admin-1" {
		t.Errorf("DecidedBy = %q, want admin-1", got.DecidedBy)
	}
	if got.DecidedAt == nil {
		t.Fatal("DecidedAt not set")
	}
	if got.Execution == nil || string(got.Execution.Output) != `{"recordId":"r1"}` {
		t.Errorf("Execution = %+v", got.Execution)
	}

	if err := s.TransitionAction(ctx, "nope", "pending", "rejected", ActionUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}
}

func TestListActionsFilterAndOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		a := newTestAction(fmt.Sprintf("a%d", i))
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.InsertAction(ctx, a); err != nil {
			t.Fatalf("InsertAction failed: %v", err)
		}
	}
	if err := s.TransitionAction(ctx, "a1", "pending", "rejected", ActionUpdate{DecidedBy: "x", DecidedAt: base}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	all, err := s.ListActions(ctx, ActionFilter{})
	if err != nil {
		t.Fatalf("ListActions failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a2" || all[2].ID != "a0" {
		t.Errorf("unexpected order: %v", actionIDs(all))
	}

	pending, err := s.ListActions(ctx, ActionFilter{Status: "pending", Limit: 10})
	if err != nil {
		t.Fatalf("ListActions failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending count = %d, want 2", len(pending))
	}
}

func actionIDs(as []Action) []string {
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.ID
	}
	return ids
}

func TestRecentMessagesWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		m := Message{
			ID:        fmt.Sprintf("m%d", i),
			ThreadID:  "t1",
			Role:      "user",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}
	other := Message{ID: "x", ThreadID: "t2", Role: "user", Content: "other", CreatedAt: base}
	if err := s.InsertMessage(ctx, other); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	msgs, err := s.RecentMessages(ctx, "t1", 3)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	want := []string{"m2", "m3", "m4"}
	for i, m := range msgs {
		if m.ID != want[i] {
			t.Errorf("msgs[%d].ID = %q, want %q", i, m.ID, want[i])
		}
		if m.Warnings == nil || m.ActionRequestIDs == nil {
			t.Errorf("msgs[%d] has nil slices", i)
		}
	}
}

func TestAllocateDocumentNumberSequential(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := s.AllocateDocumentNumber(ctx, "POL")
		if err != nil {
			t.Fatalf("AllocateDocumentNumber failed: %v", err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}

	other, err := s.AllocateDocumentNumber(ctx, "IMS-PROC")
	if err != nil {
		t.Fatalf("AllocateDocumentNumber failed: %v", err)
	}
	if other != 1 {
		t.Errorf("independent prefix got %d, want 1", other)
	}

	next, err := s.PeekDocumentNumber(ctx, "POL")
	if err != nil {
		t.Fatalf("PeekDocumentNumber failed: %v", err)
	}
	if next != 4 {
		t.Errorf("next = %d, want 4", next)
	}
}

func TestRevisionsIncrement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocument(ctx, Document{ID: "POL-001", Prefix: "POL", Title: "Safety", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}

	for want := 1; want <= 2; want++ {
		rev, err := s.InsertRevision(ctx, DocumentRevision{DocumentID: "POL-001", Status: "draft", DraftOutput: "{}"})
		if err != nil {
			t.Fatalf("InsertRevision failed: %v", err)
		}
		if rev.RevisionNumber != want {
			t.Errorf("RevisionNumber = %d, want %d", rev.RevisionNumber, want)
		}
	}

	latest, err := s.GetRevision(ctx, "POL-001", 0)
	if err != nil {
		t.Fatalf("GetRevision failed: %v", err)
	}
	if latest.RevisionNumber != 2 {
		t.Errorf("latest = %d, want 2", latest.RevisionNumber)
	}

	if err := s.SetRevisionStatus(ctx, "POL-001", 1, "review"); err != nil {
		t.Fatalf("SetRevisionStatus failed: %v", err)
	}
	first, err := s.GetRevision(ctx, "POL-001", 1)
	if err != nil {
		t.Fatalf("GetRevision failed: %v", err)
	}
	if first.Status != "review" {
		t.Errorf("Status = %q, want review", first.Status)
	}

	if _, err := s.InsertRevision(ctx, DocumentRevision{DocumentID: "POL-999", Status: "draft"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("InsertRevision on unknown document error = %v, want ErrNotFound", err)
	}
}

func TestInsertNotificationsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := []Notification{
		{ID: "n1", RecipientID: "u1", Kind: "mention", Title: "hi", CreatedAt: time.Now()},
		{ID: "n2", RecipientID: "u2", Kind: "mention", Title: "hi", CreatedAt: time.Now()},
	}
	n, err := s.InsertNotifications(ctx, batch)
	if err != nil {
		t.Fatalf("InsertNotifications failed: %v", err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	n, err = s.InsertNotifications(ctx, batch)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if n != 0 {
		t.Errorf("replay written = %d, want 0", n)
	}

	list, err := s.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d notifications for u1, want 1", len(list))
	}
}

func TestListRecipientsReviewers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recipients := []Recipient{
		{ID: "u1", DisplayName: "Bea", Email: "bea@example.com", Role: "admin", Reviewer: true, Active: true},
		{ID: "u2", DisplayName: "al", Email: "al@example.com", Role: "tech", Active: true},
		{ID: "u3", DisplayName: "Cy", Email: "cy@example.com", Role: "admin", Reviewer: true, Active: false},
	}
	for _, r := range recipients {
		if err := s.UpsertRecipient(ctx, r); err != nil {
			t.Fatalf("UpsertRecipient failed: %v", err)
		}
	}

	all, err := s.ListRecipients(ctx, false)
	if err != nil {
		t.Fatalf("ListRecipients failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "u2" {
		t.Errorf("active recipients = %+v", all)
	}

	reviewers, err := s.ListRecipients(ctx, true)
	if err != nil {
		t.Fatalf("ListRecipients failed: %v", err)
	}
	if len(reviewers) != 1 || reviewers[0].ID != "u1" || !reviewers[0].Reviewer {
		t.Errorf("reviewers = %+v", reviewers)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := Record{ID: "r1", Kind: "corrective_action", Title: "Spill", Description: "Oil spill bay 3", Status: "open", CreatedByID: "admin-1", CreatedAt: time.Now()}
	if err := s.InsertRecord(ctx, rec); err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
	got, err := s.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Status != "open" || got.CreatedByID != "admin-1" {
		t.Errorf("got %+v", got)
	}
	if string(got.Payload) != "{}" {
		t.Errorf("Payload = %s, want {}", got.Payload)
	}
}

func TestKnowledgeUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	updates := []KnowledgeUpdate{
		{ID: "k1", Summary: "Bay 3 floor resealed", Tags: []string{"facility"}, Scope: "tech", CreatedAt: base, CreatedBy: "ops"},
		{ID: "k2", Summary: "Audit due in May", Scope: "admin", CreatedAt: base.Add(time.Second), CreatedBy: "compliance"},
	}
	if err := s.InsertKnowledgeUpdates(ctx, updates); err != nil {
		t.Fatalf("InsertKnowledgeUpdates failed: %v", err)
	}

	tech, err := s.RecentKnowledge(ctx, "tech", 10)
	if err != nil {
		t.Fatalf("RecentKnowledge failed: %v", err)
	}
	if len(tech) != 1 || tech[0].Tags[0] != "facility" {
		t.Errorf("tech knowledge = %+v", tech)
	}

	all, err := s.RecentKnowledge(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentKnowledge failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "k2" {
		t.Errorf("all knowledge = %+v", all)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.EnqueueJob(ctx, Job{ID: "j1", Type: "review_mail", PayloadJSON: `{}`, MaxAttempts: 2})
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if !ok {
		t.Fatal("expected job to be enqueued")
	}
	ok, err = s.EnqueueJob(ctx, Job{ID: "j1", Type: "review_mail", PayloadJSON: `{}`})
	if err != nil {
		t.Fatalf("EnqueueJob replay failed: %v", err)
	}
	if ok {
		t.Error("duplicate job id should not be enqueued twice")
	}

	job, err := s.ClaimNextJob(ctx, []string{"review_mail"})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if job == nil || job.ID != "j1" || job.Status != "running" {
		t.Fatalf("claimed = %+v", job)
	}

	again, err := s.ClaimNextJob(ctx, []string{"review_mail"})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}

	if err := s.FailJob(ctx, "j1", "smtp down"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != "pending" || got.Attempts != 1 || got.LastError != "smtp down" {
		t.Errorf("after first failure = %+v", got)
	}
	if !got.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter %v should be in the future", got.RunAfter)
	}

	if err := s.FailJob(ctx, "j1", "smtp down"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	got, err = s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("Status = %q, want failed", got.Status)
	}

	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) error = %v, want ErrNotFound", err)
	}
}

package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

type mockSender struct {
	mu     sync.Mutex
	sent   []Mail
	sendFn func(m Mail) error
}

func (m *mockSender) Send(_ context.Context, mail Mail) error {
	if m.sendFn != nil {
		if err := m.sendFn(mail); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// makeRunnable moves run_after into the past so a job is claimable right
// after FailJob's backoff.
func makeRunnable(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, "2000-01-01T00:00:00.000000000Z", jobID)
	if err != nil {
		t.Fatalf("makeRunnable: %v", err)
	}
}

func TestOutbox_EnqueueIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	outbox := NewOutbox(store)
	ctx := context.Background()
	m := Mail{To: "ann@example.com", Subject: "Review POL-001", Body: "Please review."}

	ok, err := outbox.Enqueue(ctx, "job-1", m)
	if err != nil || !ok {
		t.Fatalf("first Enqueue = %v, %v; want true, nil", ok, err)
	}
	ok, err = outbox.Enqueue(ctx, "job-1", m)
	if err != nil || ok {
		t.Fatalf("second Enqueue = %v, %v; want false, nil", ok, err)
	}

	job, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Type != JobType {
		t.Errorf("Type = %q, want %q", job.Type, JobType)
	}
	if job.MaxAttempts != defaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", job.MaxAttempts, defaultMaxAttempts)
	}
}

func TestOutbox_RejectsHeaderInjection(t *testing.T) {
	outbox := NewOutbox(openTestStore(t))
	_, err := outbox.Enqueue(context.Background(), "job-x", Mail{To: "a@example.com\r\nBcc: b@example.com"})
	if err == nil {
		t.Fatal("expected error for recipient with line break")
	}
	_, err = outbox.Enqueue(context.Background(), "job-y", Mail{})
	if err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

func TestWorker_DeliversJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := NewOutbox(store).Enqueue(ctx, "job-1", Mail{To: "ann@example.com", Subject: "hi"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	sender := &mockSender{}
	w := NewWorker(store, sender, 0)

	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "ann@example.com" {
		t.Fatalf("sent = %+v", sender.sent)
	}

	job, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("Status = %q, want completed", job.Status)
	}

	didWork, err = w.RunOnce(ctx)
	if err != nil || didWork {
		t.Fatalf("RunOnce on empty queue = %v, %v; want false, nil", didWork, err)
	}
}

func TestWorker_RetriesThenFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.EnqueueJob(ctx, storage.Job{
		ID:          "job-f",
		Type:        JobType,
		PayloadJSON: `{"to":"ann@example.com","subject":"hi","body":""}`,
		MaxAttempts: 2,
	}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	sender := &mockSender{sendFn: func(Mail) error { return errors.New("relay down") }}
	w := NewWorker(store, sender, 0)

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce #1: %v", err)
	}
	job, _ := store.GetJob(ctx, "job-f")
	if job.Status != "pending" || job.Attempts != 1 || job.LastError != "relay down" {
		t.Fatalf("after first failure: status=%q attempts=%d last_error=%q", job.Status, job.Attempts, job.LastError)
	}

	makeRunnable(t, store, "job-f")
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce #2: %v", err)
	}
	job, _ = store.GetJob(ctx, "job-f")
	if job.Status != "failed" || job.Attempts != 2 {
		t.Fatalf("after second failure: status=%q attempts=%d", job.Status, job.Attempts)
	}
}

func TestWorker_BadPayloadFailsJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.EnqueueJob(ctx, storage.Job{ID: "job-b", Type: JobType, PayloadJSON: "not json", MaxAttempts: 1})

	w := NewWorker(store, &mockSender{}, 0)
	didWork, err := w.RunOnce(ctx)
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}
	job, _ := store.GetJob(ctx, "job-b")
	if job.Status != "failed" {
		t.Errorf("Status = %q, want failed", job.Status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockSender{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

package docseq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ASI-Josh/asiportal/internal/storage"
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

func TestAllocateNextSequential(t *testing.T) {
	a := NewAllocator(openTestStore(t))
	ctx := context.Background()

	for _, want := range []string{"POL-001", "POL-002"} {
		got, err := a.AllocateNext(ctx, "POL")
		if err != nil {
			t.Fatalf("AllocateNext failed: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestAllocateNextConcurrent(t *testing.T) {
	a := NewAllocator(openTestStore(t))
	const n = 25

	var mu sync.Mutex
	got := make(map[string]int)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			id, err := a.AllocateNext(context.Background(), "POL")
			if err != nil {
				return err
			}
			mu.Lock()
			got[id]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent AllocateNext failed: %v", err)
	}

	if len(got) != n {
		t.Fatalf("got %d distinct ids, want %d", len(got), n)
	}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("POL-%03d", i)
		if got[id] != 1 {
			t.Errorf("%s issued %d times, want 1", id, got[id])
		}
	}
}

func TestAllocateNextNormalizesPrefix(t *testing.T) {
	a := NewAllocator(openTestStore(t))

	got, err := a.AllocateNext(context.Background(), " ims-proc ")
	if err != nil {
		t.Fatalf("AllocateNext failed: %v", err)
	}
	if got != "IMS-PROC-001" {
		t.Errorf("got %q, want IMS-PROC-001", got)
	}
}

func TestAllocateNextRejectsBadPrefix(t *testing.T) {
	a := NewAllocator(openTestStore(t))

	for _, p := range []string{"", "1POL", "POL 2", "P_L", "POL-", "A--B", "-POL"} {
		if _, err := a.AllocateNext(context.Background(), p); !errors.Is(err, ErrInvalidPrefix) {
			t.Errorf("AllocateNext(%q) error = %v, want ErrInvalidPrefix", p, err)
		}
	}
}

type failingStore struct{ err error }

func (f failingStore) AllocateDocumentNumber(context.Context, string) (int, error) {
	return 0, f.err
}

func TestAllocateNextPropagatesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	a := NewAllocator(failingStore{err: boom})

	if _, err := a.AllocateNext(context.Background(), "POL"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}

func TestFormatWideNumbers(t *testing.T) {
	if got := Format("POL", 1234); got != "POL-1234" {
		t.Errorf("Format = %q, want POL-1234", got)
	}
}

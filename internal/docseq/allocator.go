// Package docseq issues sequential controlled-document numbers per prefix.
package docseq

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPrefix is returned for prefixes that cannot form a document number.
var ErrInvalidPrefix = errors.New("invalid document prefix")

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(-[A-Z0-9]+)*$`)

// CounterStore reserves the next number for a prefix atomically.
type CounterStore interface {
	AllocateDocumentNumber(ctx context.Context, prefix string) (int, error)
}

// Allocator formats numbers reserved by a CounterStore as document ids.
type Allocator struct {
	store CounterStore
}

func NewAllocator(store CounterStore) *Allocator {
	return &Allocator{store: store}
}

// AllocateNext reserves the next number for prefix and returns it formatted,
// e.g. "POL-001". Concurrent callers always receive distinct numbers; the
// store's transaction is the only synchronisation.
func (a *Allocator) AllocateNext(ctx context.Context, prefix string) (string, error) {
	p, err := NormalizePrefix(prefix)
	if err != nil {
		return "", err
	}
	n, err := a.store.AllocateDocumentNumber(ctx, p)
	if err != nil {
		return "", fmt.Errorf("allocating %s number: %w", p, err)
	}
	return Format(p, n), nil
}

// NormalizePrefix upper-cases and trims prefix and checks it is usable.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return p, nil
}

// Format renders a document id. Numbers wider than three digits are kept whole.
func Format(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

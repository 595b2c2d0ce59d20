package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

// step is one idempotent unit of a multi-step side effect.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// runSteps runs steps in order and stops at the first one that keeps failing.
// Each step gets up to attempts tries with doubling backoff. Validation and
// not-found errors are returned without retry.
func runSteps(ctx context.Context, steps []step, attempts int, backoff time.Duration) error {
	for _, s := range steps {
		if err := runStep(ctx, s, attempts, backoff); err != nil {
			return fmt.Errorf("step %s: %w", s.name, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, s step, attempts int, backoff time.Duration) error {
	var err error
	for attempt := range attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff << (attempt - 1)):
			}
		}
		if err = s.run(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		slog.Warn("action step failed", "step", s.name, "attempt", attempt+1, "error", err)
	}
	return err
}

func retryable(err error) bool {
	switch {
	case IsValidation(err),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

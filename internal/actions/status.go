// Package actions holds the human-gated action pipeline: proposals wait in a
// queue until an admin approves or rejects them, and approved actions run
// through a closed registry of typed handlers.
package actions

import "fmt"

// Status is the lifecycle state of an action.
type Status string

const (
	StatusPending Status = "pending"
	// StatusApproved marks an action claimed for execution.
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("action is %s and cannot move to %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid action transition %s -> %s", e.From, e.To)
}

// Transition checks that from -> to is an allowed edge.
func Transition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

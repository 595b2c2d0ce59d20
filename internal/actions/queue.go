package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

// Store is the action persistence the queue needs.
type Store interface {
	InsertAction(ctx context.Context, a storage.Action) error
	GetAction(ctx context.Context, id string) (storage.Action, error)
	ListActions(ctx context.Context, f storage.ActionFilter) ([]storage.Action, error)
	TransitionAction(ctx context.Context, id, from, to string, upd storage.ActionUpdate) error
}

// Operation is an admin decision on pending actions.
type Operation string

const (
	OpApprove Operation = "approve"
	OpReject  Operation = "reject"
)

// Proposal is a request to create a pending action.
type Proposal struct {
	ActionType  string
	Summary     string
	Payload     json.RawMessage
	RequestedBy storage.Requester
	ThreadID    string
}

// Outcome is the result of deciding one action.
type Outcome struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Queue holds proposed actions until an admin decides them. Approval runs the
// action through the registry exactly once: the caller that moves the action
// from pending to approved is the only one that executes it.
type Queue struct {
	store    Store
	registry *Registry
	now      func() time.Time
	logger   *slog.Logger
}

func NewQueue(store Store, registry *Registry) *Queue {
	return &Queue{
		store:    store,
		registry: registry,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Registry returns the registry approved actions run through.
func (q *Queue) Registry() *Registry {
	return q.registry
}

// Propose validates p and stores it as a new pending action.
func (q *Queue) Propose(ctx context.Context, p Proposal) (storage.Action, error) {
	p.ActionType = strings.TrimSpace(p.ActionType)
	if p.ActionType == "" {
		return storage.Action{}, invalid("actionType", "is required")
	}
	if p.RequestedBy.AgentID == "" && p.RequestedBy.UserID == "" {
		return storage.Action{}, invalid("requestedBy", "needs an agent or user id")
	}
	if len(p.Payload) == 0 || string(p.Payload) == "null" {
		p.Payload = json.RawMessage("{}")
	}
	if err := q.registry.Validate(p.ActionType, p.Payload); err != nil {
		return storage.Action{}, err
	}
	if p.Summary == "" {
		p.Summary = p.ActionType
	}
	if p.RequestedBy.Name == "" {
		p.RequestedBy.Name = p.RequestedBy.AgentID + p.RequestedBy.UserID
	}

	a := storage.Action{
		ID:          idgen.New(),
		Status:      string(StatusPending),
		ActionType:  p.ActionType,
		Summary:     p.Summary,
		Payload:     p.Payload,
		RequestedBy: p.RequestedBy,
		ThreadID:    p.ThreadID,
		CreatedAt:   q.now().UTC(),
	}
	if err := q.store.InsertAction(ctx, a); err != nil {
		return storage.Action{}, err
	}
	q.logger.Info("action proposed", "action_id", a.ID, "action_type", a.ActionType, "requested_by", a.RequestedBy.Name)
	return a, nil
}

// Decide applies op to each id independently. A failure on one id is
// reported in its Outcome and never affects the others. The returned error
// is reserved for invalid requests.
func (q *Queue) Decide(ctx context.Context, ids []string, op Operation, decidedBy string) ([]Outcome, error) {
	if op != OpApprove && op != OpReject {
		return nil, invalid("operation", "must be approve or reject, got %q", op)
	}
	if strings.TrimSpace(decidedBy) == "" {
		return nil, invalid("decidedBy", "is required")
	}
	if len(ids) == 0 {
		return nil, invalid("actionIds", "must not be empty")
	}

	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		if op == OpReject {
			outcomes = append(outcomes, q.reject(ctx, id, decidedBy))
		} else {
			outcomes = append(outcomes, q.approve(ctx, id, decidedBy))
		}
	}
	return outcomes, nil
}

func (q *Queue) reject(ctx context.Context, id, decidedBy string) Outcome {
	err := q.transition(ctx, id, StatusPending, StatusRejected, storage.ActionUpdate{
		DecidedBy: decidedBy,
		DecidedAt: q.now().UTC(),
	})
	if err != nil {
		return q.failedDecision(ctx, id, err)
	}
	q.logger.Info("action rejected", "action_id", id, "decided_by", decidedBy)
	return Outcome{ID: id, Status: string(StatusRejected)}
}

func (q *Queue) approve(ctx context.Context, id, decidedBy string) Outcome {
	a, err := q.store.GetAction(ctx, id)
	if err != nil {
		return q.failedDecision(ctx, id, err)
	}

	err = q.transition(ctx, id, StatusPending, StatusApproved, storage.ActionUpdate{
		DecidedBy: decidedBy,
		DecidedAt: q.now().UTC(),
	})
	if err != nil {
		return q.failedDecision(ctx, id, err)
	}

	out, execErr := q.registry.Execute(ctx, Exec{
		ActionID:    a.ID,
		DecidedBy:   decidedBy,
		RequestedBy: a.RequestedBy,
		ThreadID:    a.ThreadID,
	}, a.ActionType, a.Payload)

	var output json.RawMessage
	if execErr == nil {
		if output, err = json.Marshal(out); err != nil {
			execErr = fmt.Errorf("marshaling result: %w", err)
		}
	}

	// The claim is held; finish the record even if the caller went away.
	finishCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		q.logger.Warn("action failed", "error", &ExecutionError{ActionID: a.ID, Kind: Kind(a.ActionType), Err: execErr})
		if err := q.transition(finishCtx, id, StatusApproved, StatusFailed, storage.ActionUpdate{
			Execution: &storage.Execution{Error: execErr.Error()},
		}); err != nil {
			q.logger.Error("recording action failure", "action_id", id, "error", err)
			return Outcome{ID: id, Status: string(StatusApproved), Error: err.Error()}
		}
		return Outcome{ID: id, Status: string(StatusFailed), Error: execErr.Error()}
	}

	if err := q.transition(finishCtx, id, StatusApproved, StatusExecuted, storage.ActionUpdate{
		Execution: &storage.Execution{Output: output},
	}); err != nil {
		q.logger.Error("recording action result", "action_id", id, "error", err)
		return Outcome{ID: id, Status: string(StatusApproved), Error: err.Error()}
	}
	q.logger.Info("action executed", "action_id", a.ID, "action_type", a.ActionType, "decided_by", decidedBy)
	return Outcome{ID: id, Status: string(StatusExecuted)}
}

// transition checks the edge against the state machine before asking the
// store to compare-and-swap it.
func (q *Queue) transition(ctx context.Context, id string, from, to Status, upd storage.ActionUpdate) error {
	if err := Transition(from, to); err != nil {
		return err
	}
	return q.store.TransitionAction(ctx, id, string(from), string(to), upd)
}

func (q *Queue) failedDecision(ctx context.Context, id string, err error) Outcome {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Outcome{ID: id, Error: fmt.Sprintf("action %s not found", id)}
	case errors.Is(err, storage.ErrConflict):
		current, getErr := q.store.GetAction(ctx, id)
		if getErr != nil {
			return Outcome{ID: id, Error: err.Error()}
		}
		return Outcome{ID: id, Status: current.Status, Error: fmt.Sprintf("action %s is %s", id, current.Status)}
	}
	q.logger.Error("deciding action", "action_id", id, "error", err)
	return Outcome{ID: id, Error: err.Error()}
}

// Get returns one action.
func (q *Queue) Get(ctx context.Context, id string) (storage.Action, error) {
	return q.store.GetAction(ctx, id)
}

// List returns recent actions, newest first.
func (q *Queue) List(ctx context.Context, f storage.ActionFilter) ([]storage.Action, error) {
	if f.Status != "" && !Status(f.Status).Valid() {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	return q.store.ListActions(ctx, f)
}

package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

// Kind names an action variant. The string is the wire actionType.
type Kind string

const (
	KindSocialPost       Kind = "social.post"
	KindDocumentDraft    Kind = "ims.document.draft"
	KindDocumentReview   Kind = "ims.document.submit_review"
	KindCorrectiveAction Kind = "ims.corrective_action.raise"
	KindIncidentReport   Kind = "ims.incident.report"
)

// Kinds lists every variant the portal supports.
var Kinds = []Kind{
	KindSocialPost,
	KindDocumentDraft,
	KindDocumentReview,
	KindCorrectiveAction,
	KindIncidentReport,
}

// Payload is the typed body of one variant. Validate runs before the handler.
type Payload interface {
	Validate() error
}

// Exec is what a handler knows about the action it runs for.
type Exec struct {
	ActionID    string
	DecidedBy   string
	RequestedBy storage.Requester
	ThreadID    string
}

type variant struct {
	decode func(raw json.RawMessage) (Payload, error)
	run    func(ctx context.Context, ex Exec, p Payload) (any, error)
}

// Registry maps kinds to typed handlers.
type Registry struct {
	variants map[Kind]variant
}

func newRegistry() *Registry {
	return &Registry{variants: make(map[Kind]variant)}
}

// bind registers h for kind. P fixes the payload shape the kind decodes into.
func bind[P Payload](r *Registry, kind Kind, h func(ctx context.Context, ex Exec, p P) (any, error)) {
	r.variants[kind] = variant{
		decode: func(raw json.RawMessage) (Payload, error) {
			var p P
			if len(bytes.TrimSpace(raw)) == 0 {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalid("payload", "decoding %s payload: %v", kind, err)
			}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			return p, nil
		},
		run: func(ctx context.Context, ex Exec, p Payload) (any, error) {
			return h(ctx, ex, p.(P))
		},
	}
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.variants[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.variants))
	for k := range r.variants {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Validate decodes and validates a payload for actionType without running it.
func (r *Registry) Validate(actionType string, raw json.RawMessage) error {
	v, ok := r.variants[Kind(actionType)]
	if !ok {
		return &UnsupportedTypeError{Type: actionType}
	}
	_, err := v.decode(raw)
	return err
}

// Execute decodes the payload for actionType and runs its handler. A handler
// panic is returned as an error.
func (r *Registry) Execute(ctx context.Context, ex Exec, actionType string, raw json.RawMessage) (out any, err error) {
	v, ok := r.variants[Kind(actionType)]
	if !ok {
		return nil, &UnsupportedTypeError{Type: actionType}
	}
	p, err := v.decode(raw)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return v.run(ctx, ex, p)
}

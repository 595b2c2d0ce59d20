package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

// JobType is the jobs-table type used for outgoing mail.
const JobType = "review_mail"

const defaultMaxAttempts = 5

// Mail is one outgoing message.
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (m Mail) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail has no recipient")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("mail headers must not contain line breaks")
	}
	return nil
}

// JobEnqueuer is the part of the job store the outbox writes to.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) (bool, error)
}

// Outbox queues mail for the Worker.
type Outbox struct {
	store       JobEnqueuer
	maxAttempts int
}

func NewOutbox(store JobEnqueuer) *Outbox {
	return &Outbox{store: store, maxAttempts: defaultMaxAttempts}
}

// Enqueue stores m under id. Enqueueing an id that already exists is a no-op
// and returns false.
func (o *Outbox) Enqueue(ctx context.Context, id string, m Mail) (bool, error) {
	if err := m.validate(); err != nil {
		return false, err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshaling mail: %w", err)
	}
	return o.store.EnqueueJob(ctx, storage.Job{
		ID:          id,
		Type:        JobType,
		PayloadJSON: string(payload),
		MaxAttempts: o.maxAttempts,
	})
}

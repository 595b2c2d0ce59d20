package actions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/mailer"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

// ReviewSubmissionPayload is the payload of ims.document.submit_review.
// RevisionNumber 0 selects the latest revision.
type ReviewSubmissionPayload struct {
	DocumentID     string `json:"documentId"`
	RevisionNumber int    `json:"revisionNumber,omitempty"`
	Note           string `json:"note,omitempty"`
}

func (p ReviewSubmissionPayload) Validate() error {
	if strings.TrimSpace(p.DocumentID) == "" {
		return invalid("documentId", "is required")
	}
	if p.RevisionNumber < 0 {
		return invalid("revisionNumber", "must not be negative")
	}
	return nil
}

// ReviewResult is returned by ims.document.submit_review.
type ReviewResult struct {
	DocumentID     string   `json:"documentId"`
	RevisionNumber int      `json:"revisionNumber"`
	Status         string   `json:"status"`
	Reviewers      []string `json:"reviewers"`
	MailsQueued    int      `json:"mailsQueued"`
}

func (h *handlers) submitReview(ctx context.Context, ex Exec, p ReviewSubmissionPayload) (any, error) {
	if h.Store == nil {
		return nil, errNoStore
	}
	if h.Outbox == nil {
		return nil, fmt.Errorf("mail outbox is not configured")
	}

	doc, err := h.Store.GetDocument(ctx, p.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", p.DocumentID, err)
	}

	var (
		rev       storage.DocumentRevision
		reviewers []storage.Recipient
		res       = ReviewResult{DocumentID: doc.ID, Reviewers: []string{}}
	)

	title := func() string {
		return fmt.Sprintf("Review requested: %s %s (rev %d)", doc.ID, doc.Title, rev.RevisionNumber)
	}
	body := func() string {
		if note := strings.TrimSpace(p.Note); note != "" {
			return note
		}
		return fmt.Sprintf("Revision %d of %s is ready for review.", rev.RevisionNumber, doc.ID)
	}
	link := func() string {
		return h.link(fmt.Sprintf("/documents/%s?rev=%d", doc.ID, rev.RevisionNumber))
	}
	// Ids depend on the revision and recipient only, so a repeated
	// submission of the same revision never duplicates a notification or mail.
	stepID := func(kind, recipientID string) string {
		return idgen.Derive("review", kind, doc.ID, strconv.Itoa(rev.RevisionNumber), recipientID)
	}

	steps := []step{
		{name: "mark-review", run: func(ctx context.Context) error {
			r, err := h.Store.GetRevision(ctx, doc.ID, p.RevisionNumber)
			if err != nil {
				return fmt.Errorf("loading revision %d of %s: %w", p.RevisionNumber, doc.ID, err)
			}
			switch r.Status {
			case "review":
			case "draft":
				if err := h.Store.SetRevisionStatus(ctx, doc.ID, r.RevisionNumber, "review"); err != nil {
					return fmt.Errorf("marking revision for review: %w", err)
				}
			default:
				return invalid("revisionNumber", "revision %d of %s is %s, only drafts can be submitted",
					r.RevisionNumber, doc.ID, r.Status)
			}
			r.Status = "review"
			rev = r
			return nil
		}},
		{name: "notify-reviewers", run: func(ctx context.Context) error {
			list, err := h.Store.ListRecipients(ctx, true)
			if err != nil {
				return fmt.Errorf("listing reviewers: %w", err)
			}
			batch := make([]storage.Notification, 0, len(list))
			for _, r := range list {
				batch = append(batch, storage.Notification{
					ID:          stepID("notify", r.ID),
					RecipientID: r.ID,
					ActorID:     ex.DecidedBy,
					Kind:        "review_request",
					Title:       title(),
					Body:        body(),
					Link:        link(),
					CreatedAt:   h.now(),
				})
			}
			if _, err := h.Store.InsertNotifications(ctx, batch); err != nil {
				return fmt.Errorf("writing review notifications: %w", err)
			}
			reviewers = list
			return nil
		}},
		{name: "enqueue-mail", run: func(ctx context.Context) error {
			queued := 0
			for _, r := range reviewers {
				if r.Email == "" {
					continue
				}
				m := mailer.Mail{
					To:      r.Email,
					Subject: title(),
					Body:    fmt.Sprintf("Hello %s,\n\n%s\n\nOpen the document: %s\n", r.DisplayName, body(), link()),
				}
				if _, err := h.Outbox.Enqueue(ctx, stepID("mail", r.ID), m); err != nil {
					return fmt.Errorf("queueing mail for %s: %w", r.ID, err)
				}
				queued++
			}
			res.MailsQueued = queued
			return nil
		}},
	}

	if err := runSteps(ctx, steps, h.StepAttempts, h.StepBackoff); err != nil {
		return nil, err
	}

	res.RevisionNumber = rev.RevisionNumber
	res.Status = rev.Status
	for _, r := range reviewers {
		res.Reviewers = append(res.Reviewers, r.ID)
	}
	return res, nil
}

package actions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ASI-Josh/asiportal/internal/mailer"
	"github.com/ASI-Josh/asiportal/internal/storage"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

// DraftWorkflowID is the workflow used to draft controlled documents.
const DraftWorkflowID = "document-draft"

// HandlerStore is the storage the handlers read and write.
type HandlerStore interface {
	InsertDocument(ctx context.Context, d storage.Document) error
	GetDocument(ctx context.Context, id string) (storage.Document, error)
	InsertRevision(ctx context.Context, rev storage.DocumentRevision) (storage.DocumentRevision, error)
	GetRevision(ctx context.Context, documentID string, revisionNumber int) (storage.DocumentRevision, error)
	SetRevisionStatus(ctx context.Context, documentID string, revisionNumber int, status string) error
	ListRecipients(ctx context.Context, reviewersOnly bool) ([]storage.Recipient, error)
	InsertNotifications(ctx context.Context, batch []storage.Notification) (int, error)
	InsertRecord(ctx context.Context, r storage.Record) error
}

// NumberAllocator hands out document numbers.
type NumberAllocator interface {
	AllocateNext(ctx context.Context, prefix string) (string, error)
}

// Drafter runs a structured workflow.
type Drafter interface {
	Run(ctx context.Context, req workflow.Request, out any) error
}

// MailOutbox queues mail for asynchronous delivery.
type MailOutbox interface {
	Enqueue(ctx context.Context, id string, m mailer.Mail) (bool, error)
}

// Publisher posts to an external social network.
type Publisher interface {
	Post(ctx context.Context, p SocialPostPayload) (SocialPostResult, error)
}

// Deps are the collaborators handlers use. A nil collaborator makes the
// kinds that need it fail at execution time.
type Deps struct {
	Store     HandlerStore
	Allocator NumberAllocator
	Drafter   Drafter
	Outbox    MailOutbox
	Social    Publisher

	DraftWorkflow string
	DraftTimeout  time.Duration
	DraftRetries  int

	// PortalURL prefixes links in notifications and mail.
	PortalURL string

	StepAttempts int
	StepBackoff  time.Duration

	Now func() time.Time
}

type handlers struct {
	Deps
}

// NewRegistry registers every kind in Kinds.
func NewRegistry(d Deps) *Registry {
	if d.DraftWorkflow == "" {
		d.DraftWorkflow = DraftWorkflowID
	}
	if d.DraftRetries == 0 {
		d.DraftRetries = 2
	}
	if d.StepAttempts <= 0 {
		d.StepAttempts = 3
	}
	if d.StepBackoff <= 0 {
		d.StepBackoff = 200 * time.Millisecond
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	h := &handlers{Deps: d}
	r := newRegistry()
	bind(r, KindSocialPost, h.postSocial)
	bind(r, KindDocumentDraft, h.draftDocument)
	bind(r, KindDocumentReview, h.submitReview)
	bind(r, KindCorrectiveAction, h.raiseCorrectiveAction)
	bind(r, KindIncidentReport, h.reportIncident)
	return r
}

var errNoStore = errors.New("no storage configured")

func (h *handlers) now() time.Time {
	return h.Now().UTC()
}

func (h *handlers) link(path string) string {
	if h.PortalURL == "" {
		return path
	}
	return strings.TrimRight(h.PortalURL, "/") + path
}

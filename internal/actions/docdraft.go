package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ASI-Josh/asiportal/internal/docseq"
	"github.com/ASI-Josh/asiportal/internal/storage"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

// DocumentDraftPayload is the payload of ims.document.draft. An empty
// DocumentID creates a new document numbered under Prefix.
type DocumentDraftPayload struct {
	DocumentID string   `json:"documentId,omitempty"`
	Prefix     string   `json:"prefix,omitempty"`
	Title      string   `json:"title,omitempty"`
	DocType    string   `json:"docType,omitempty"`
	Brief      string   `json:"brief"`
	Sections   []string `json:"sections,omitempty"`
}

func (p DocumentDraftPayload) Validate() error {
	if strings.TrimSpace(p.Brief) == "" {
		return invalid("brief", "is required")
	}
	if p.DocumentID != "" {
		return nil
	}
	if strings.TrimSpace(p.Title) == "" {
		return invalid("title", "is required for a new document")
	}
	if strings.TrimSpace(p.Prefix) == "" {
		return invalid("prefix", "is required for a new document")
	}
	if _, err := docseq.NormalizePrefix(p.Prefix); err != nil {
		return invalid("prefix", "%v", err)
	}
	return nil
}

// DocumentDraft is the structured output of the drafting workflow.
type DocumentDraft struct {
	Title      string         `json:"title"`
	Purpose    string         `json:"purpose"`
	Scope      string         `json:"scope"`
	Sections   []DraftSection `json:"sections"`
	References []string       `json:"references"`
}

type DraftSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

var draftSchema = workflow.SchemaFor[DocumentDraft]()

// DraftResult is returned by ims.document.draft.
type DraftResult struct {
	DocumentID     string `json:"documentId"`
	RevisionNumber int    `json:"revisionNumber"`
	Status         string `json:"status"`
	Title          string `json:"title"`
}

func (h *handlers) draftDocument(ctx context.Context, ex Exec, p DocumentDraftPayload) (any, error) {
	if h.Store == nil {
		return nil, errNoStore
	}
	if h.Drafter == nil {
		return nil, errors.New("document drafting is not configured")
	}

	var (
		doc      storage.Document
		previous string
	)
	if p.DocumentID == "" {
		if h.Allocator == nil {
			return nil, errors.New("document numbering is not configured")
		}
		prefix, err := docseq.NormalizePrefix(p.Prefix)
		if err != nil {
			return nil, invalid("prefix", "%v", err)
		}
		id, err := h.Allocator.AllocateNext(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("allocating document number: %w", err)
		}
		doc = storage.Document{
			ID:        id,
			Prefix:    prefix,
			Title:     strings.TrimSpace(p.Title),
			DocType:   p.DocType,
			CreatedAt: h.now(),
			CreatedBy: ex.DecidedBy,
		}
		if err := h.Store.InsertDocument(ctx, doc); err != nil {
			return nil, err
		}
	} else {
		var err error
		doc, err = h.Store.GetDocument(ctx, p.DocumentID)
		if err != nil {
			return nil, fmt.Errorf("loading document %s: %w", p.DocumentID, err)
		}
		rev, err := h.Store.GetRevision(ctx, doc.ID, 0)
		switch {
		case err == nil:
			previous = rev.DraftOutput
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("loading latest revision of %s: %w", doc.ID, err)
		}
	}

	var draft DocumentDraft
	err := h.Drafter.Run(ctx, workflow.Request{
		WorkflowID: h.DraftWorkflow,
		Prompt:     draftPrompt(doc, p, previous),
		Schema:     draftSchema,
		Timeout:    h.DraftTimeout,
		MaxRetries: h.DraftRetries,
	}, &draft)
	if err != nil {
		return nil, fmt.Errorf("drafting %s: %w", doc.ID, err)
	}

	out, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshaling draft: %w", err)
	}
	rev, err := h.Store.InsertRevision(ctx, storage.DocumentRevision{
		DocumentID:  doc.ID,
		Status:      "draft",
		DraftOutput: string(out),
		CreatedAt:   h.now(),
		CreatedBy:   ex.DecidedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("writing revision of %s: %w", doc.ID, err)
	}

	return DraftResult{
		DocumentID:     doc.ID,
		RevisionNumber: rev.RevisionNumber,
		Status:         rev.Status,
		Title:          doc.Title,
	}, nil
}

func draftPrompt(doc storage.Document, p DocumentDraftPayload, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document number: %s\n", doc.ID)
	fmt.Fprintf(&b, "Title: %s\n", doc.Title)
	if doc.DocType != "" {
		fmt.Fprintf(&b, "Document type: %s\n", doc.DocType)
	}
	fmt.Fprintf(&b, "\nBrief:\n%s\n", strings.TrimSpace(p.Brief))
	if len(p.Sections) > 0 {
		b.WriteString("\nInclude these sections, in order:\n")
		for _, s := range p.Sections {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if previous != "" {
		fmt.Fprintf(&b, "\nPrevious revision (JSON):\n%s\n", previous)
	}
	return b.String()
}

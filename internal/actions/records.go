package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

func validSeverity(s string) bool {
	switch s {
	case "", "low", "medium", "high", "critical":
		return true
	}
	return false
}

// CorrectiveActionPayload is the payload of ims.corrective_action.raise.
type CorrectiveActionPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	SourceRef   string `json:"sourceRef,omitempty"`
}

func (p CorrectiveActionPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return invalid("description", "is required")
	}
	if !validSeverity(p.Severity) {
		return invalid("severity", "must be low, medium, high or critical")
	}
	if p.DueDate != "" {
		if _, err := time.Parse(time.DateOnly, p.DueDate); err != nil {
			return invalid("dueDate", "must be YYYY-MM-DD")
		}
	}
	return nil
}

// IncidentPayload is the payload of ims.incident.report.
type IncidentPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// OccurredAt is RFC3339 or YYYY-MM-DD.
	OccurredAt string `json:"occurredAt"`
	Location   string `json:"location,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

func (p IncidentPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		return invalid("description", "is required")
	}
	if strings.TrimSpace(p.OccurredAt) == "" {
		return invalid("occurredAt", "is required")
	}
	if _, err := time.Parse(time.RFC3339, p.OccurredAt); err != nil {
		if _, err := time.Parse(time.DateOnly, p.OccurredAt); err != nil {
			return invalid("occurredAt", "must be RFC3339 or YYYY-MM-DD")
		}
	}
	if !validSeverity(p.Severity) {
		return invalid("severity", "must be low, medium, high or critical")
	}
	return nil
}

// RecordResult is returned by the record-creating kinds.
type RecordResult struct {
	RecordID    string `json:"recordId"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	CreatedByID string `json:"createdById"`
}

func (h *handlers) raiseCorrectiveAction(ctx context.Context, ex Exec, p CorrectiveActionPayload) (any, error) {
	return h.createRecord(ctx, ex, "corrective_action", p.Title, p.Description, p.Severity, p)
}

func (h *handlers) reportIncident(ctx context.Context, ex Exec, p IncidentPayload) (any, error) {
	return h.createRecord(ctx, ex, "incident", p.Title, p.Description, p.Severity, p)
}

func (h *handlers) createRecord(ctx context.Context, ex Exec, kind, title, description, severity string, payload any) (any, error) {
	if h.Store == nil {
		return nil, errNoStore
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", kind, err)
	}
	rec := storage.Record{
		ID:             idgen.New(),
		Kind:           kind,
		Title:          strings.TrimSpace(title),
		Description:    strings.TrimSpace(description),
		Status:         "open",
		Severity:       severity,
		CreatedByID:    ex.DecidedBy,
		SourceActionID: ex.ActionID,
		Payload:        raw,
		CreatedAt:      h.now(),
	}
	if err := h.Store.InsertRecord(ctx, rec); err != nil {
		return nil, err
	}
	return RecordResult{RecordID: rec.ID, Kind: rec.Kind, Status: rec.Status, CreatedByID: rec.CreatedByID}, nil
}

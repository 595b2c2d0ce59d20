package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update finds the row in a
// different state than the caller expected.
var ErrConflict = errors.New("conflict")

// Requester identifies who proposed an action: an agent or a user.
type Requester struct {
	AgentID string `json:"agentId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Name    string `json:"name"`
}

// Execution holds the outcome of running an approved action. Exactly one of
// Output or Error is set.
type Execution struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Action struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	ActionType  string          `json:"actionType"`
	Summary     string          `json:"summary"`
	Payload     json.RawMessage `json:"payload"`
	RequestedBy Requester       `json:"requestedBy"`
	ThreadID    string          `json:"threadId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	DecidedBy   string          `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time      `json:"decidedAt,omitempty"`
	Execution   *Execution      `json:"execution,omitempty"`
}

// ActionFilter narrows ListActions. Zero values mean no filter.
type ActionFilter struct {
	Status string
	Limit  int
}

// ActionUpdate carries the fields written alongside a status transition.
type ActionUpdate struct {
	DecidedBy string
	DecidedAt time.Time
	Execution *Execution
}

type Message struct {
	ID               string    `json:"id"`
	ThreadID         string    `json:"threadId"`
	Role             string    `json:"role"` // "user" or "agent"
	AgentID          string    `json:"agentId,omitempty"`
	AgentName        string    `json:"agentName,omitempty"`
	AuthorID         string    `json:"authorId,omitempty"`
	Content          string    `json:"content"`
	Warnings         []string  `json:"warnings"`
	ActionRequestIDs []string  `json:"actionRequestIds"`
	CreatedAt        time.Time `json:"createdAt"`
}

type KnowledgeUpdate struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Tags      []string  `json:"tags"`
	Scope     string    `json:"scope"` // "admin" or "tech"
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

type Document struct {
	ID        string    `json:"id"`
	Prefix    string    `json:"prefix"`
	Title     string    `json:"title"`
	DocType   string    `json:"docType"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

type DocumentRevision struct {
	DocumentID      string    `json:"documentId"`
	RevisionNumber  int       `json:"revisionNumber"`
	Status          string    `json:"status"` // "draft", "review", "issued", "obsolete"
	DraftOutput     string    `json:"draftOutput"`
	FilePath        string    `json:"file,omitempty"`
	FileContentType string    `json:"fileContentType,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	CreatedBy       string    `json:"createdBy"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Recipient is a portal user who can be mentioned or asked to review.
type Recipient struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Reviewer    bool      `json:"reviewer"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipientId"`
	ActorID     string     `json:"actorId"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Link        string     `json:"link"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

// Record is a register entry such as a corrective action or an incident.
type Record struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         string          `json:"status"`
	Severity       string          `json:"severity,omitempty"`
	CreatedByID    string          `json:"createdById"`
	SourceActionID string          `json:"sourceActionId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

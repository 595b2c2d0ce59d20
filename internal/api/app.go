// Package api serves the portal's HTTP and MCP surfaces.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Conversation runs rounds and reads thread history.
// Implemented by *conversation.Orchestrator.
type Conversation interface {
	RunRound(ctx context.Context, r conversation.Round) (conversation.RoundResult, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]storage.Message, error)
	Agents() []conversation.Agent
}

// ActionQueue proposes and decides actions. Implemented by *actions.Queue.
type ActionQueue interface {
	Propose(ctx context.Context, p actions.Proposal) (storage.Action, error)
	Decide(ctx context.Context, ids []string, op actions.Operation, decidedBy string) ([]actions.Outcome, error)
	Get(ctx context.Context, id string) (storage.Action, error)
	List(ctx context.Context, f storage.ActionFilter) ([]storage.Action, error)
}

// NotificationStore lists a recipient's notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]storage.Notification, error)
}

// StreamHub delivers new thread messages to live subscribers.
type StreamHub interface {
	Subscribe(ctx context.Context, threadID string) <-chan storage.Message
}

type AppDeps struct {
	Conversation  Conversation
	Actions       ActionQueue
	Notifications NotificationStore
	Recipients    RecipientStore
	Hub           StreamHub // optional; if nil, the stream route returns 404
	Auth          AuthConfig
	// StreamOrigins are extra origin patterns allowed to open the stream.
	StreamOrigins []string
}

// NewAppHandler returns the portal REST API. Everything except /health
// requires an admin identity.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AdminAuth(deps.Auth))

		r.Post("/conversation/{threadId}/messages", handlePostMessage(deps))
		r.Get("/conversation/{threadId}/messages", handleListMessages(deps))
		r.Get("/conversation/{threadId}/stream", handleStream(deps))
		r.Get("/agents", handleListAgents(deps))

		r.Post("/actions", handleActions(deps))
		r.Get("/actions", handleListActions(deps))
		r.Get("/actions/{id}", handleGetAction(deps))

		r.Get("/notifications", handleListNotifications(deps))
		r.Get("/recipients", handleListRecipients(deps))
		r.Put("/recipients", handlePutRecipient(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// caller returns the principal AdminAuth stored for r.
func caller(r *http.Request) Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

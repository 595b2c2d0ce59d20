// Package conversation runs rounds of the multi-agent conversation: a user
// message followed by one structured turn per selected agent, in order.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/doccontext"
	"github.com/ASI-Josh/asiportal/internal/idgen"
	"github.com/ASI-Josh/asiportal/internal/knowledge"
	"github.com/ASI-Josh/asiportal/internal/mentions"
	"github.com/ASI-Josh/asiportal/internal/storage"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

// FallbackContent replaces an agent answer that could not be produced.
const FallbackContent = "Unable to complete this request right now."

const (
	defaultHistoryWindow = 30
	defaultHistoryTurns  = 12
	maxMessageLen        = 20000
)

// MessageStore persists thread messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, m storage.Message) error
	RecentMessages(ctx context.Context, threadID string, limit int) ([]storage.Message, error)
}

// Runner runs a structured workflow.
type Runner interface {
	Run(ctx context.Context, req workflow.Request, out any) error
}

// Proposer queues agent action requests for approval.
type Proposer interface {
	Propose(ctx context.Context, p actions.Proposal) (storage.Action, error)
}

// Knowledge records and summarizes knowledge updates.
type Knowledge interface {
	Record(ctx context.Context, createdBy string, items []knowledge.Item) ([]storage.KnowledgeUpdate, error)
	Summary(ctx context.Context, scope string) (string, error)
}

// DocumentLoader resolves document ids to prompt text.
type DocumentLoader interface {
	Load(ctx context.Context, ids []string) (doccontext.Result, error)
}

// MentionDispatcher notifies users mentioned in a message.
type MentionDispatcher interface {
	Dispatch(ctx context.Context, m mentions.Mention) ([]string, error)
}

// Publisher fans new messages out to live subscribers.
type Publisher interface {
	Publish(msg storage.Message)
}

// Deps are the Orchestrator's collaborators. Knowledge, Documents, Mentions
// and Hub may be nil.
type Deps struct {
	Messages  MessageStore
	Runner    Runner
	Actions   Proposer
	Knowledge Knowledge
	Documents DocumentLoader
	Mentions  MentionDispatcher
	Hub       Publisher
	Roster    *Roster
}

// Config tunes rounds. Zero values use defaults.
type Config struct {
	// HistoryWindow is how many stored messages seed a round's history.
	HistoryWindow int
	// HistoryTurns is how many history messages each prompt includes.
	HistoryTurns int
	Timeout      time.Duration
	MaxRetries   int
	// ActionTypes are listed to agents as the allowed action types.
	ActionTypes []string
	PortalURL   string
	// MaxContextTokens bounds the rendered prompt.
	MaxContextTokens int
}

// Actor is the authenticated user sending a message.
type Actor struct {
	ID   string
	Name string
}

// Round is one user message and the agents that should answer it.
type Round struct {
	ThreadID     string
	Message      string
	Agents       []string
	DocIDs       []string
	MeetingNotes string
	Intent       string
	Actor        Actor
}

// RoundResult summarizes what a round persisted.
type RoundResult struct {
	UserMessageID    string            `json:"userMessageId"`
	CreatedMessages  []storage.Message `json:"createdMessages"`
	ActionRequestIDs []string          `json:"actionRequestIds"`
}

// AgentOutput is the structured answer of one agent turn.
type AgentOutput struct {
	Answer           string           `json:"answer"`
	ActionRequests   []ActionRequest  `json:"actionRequests"`
	KnowledgeUpdates []knowledge.Item `json:"knowledgeUpdates"`
}

// ActionRequest is an action an agent asks an admin to approve. Payload holds
// the action's fields as a JSON object encoded in a string, which keeps the
// output schema closed.
type ActionRequest struct {
	ActionType string `json:"actionType"`
	Summary    string `json:"summary"`
	Payload    string `json:"payload"`
}

var outputSchema = workflow.SchemaFor[AgentOutput]()

// Orchestrator runs conversation rounds.
type Orchestrator struct {
	Deps
	cfg      Config
	composer *Composer
	now      func() time.Time
	logger   *slog.Logger
}

func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = defaultHistoryTurns
	}
	return &Orchestrator{
		Deps:     deps,
		cfg:      cfg,
		composer: NewComposer(cfg.MaxContextTokens),
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// RunRound persists the user message and runs each selected agent in turn.
// Every agent sees the answers of the agents before it. An agent whose turn
// fails gets a fallback message and the round goes on; messages already
// written stay written.
func (o *Orchestrator) RunRound(ctx context.Context, r Round) (RoundResult, error) {
	r.ThreadID = strings.TrimSpace(r.ThreadID)
	r.Message = strings.TrimSpace(r.Message)
	if r.ThreadID == "" {
		return RoundResult{}, &ValidationError{Field: "threadId", Message: "is required"}
	}
	if r.Message == "" {
		return RoundResult{}, &ValidationError{Field: "message", Message: "is required"}
	}
	if len(r.Message) > maxMessageLen {
		return RoundResult{}, &ValidationError{Field: "message", Message: fmt.Sprintf("must be at most %d bytes", maxMessageLen)}
	}
	agents, err := o.Roster.Resolve(r.Agents)
	if err != nil {
		return RoundResult{}, err
	}

	userMsg := storage.Message{
		ID:               idgen.Message(),
		ThreadID:         r.ThreadID,
		Role:             "user",
		AuthorID:         r.Actor.ID,
		Content:          r.Message,
		Warnings:         []string{},
		ActionRequestIDs: []string{},
		CreatedAt:        o.now().UTC(),
	}
	if err := o.Messages.InsertMessage(ctx, userMsg); err != nil {
		return RoundResult{}, fmt.Errorf("saving user message: %w", err)
	}
	o.publish(userMsg)
	o.dispatchMentions(ctx, r)

	recent, err := o.Messages.RecentMessages(ctx, r.ThreadID, o.cfg.HistoryWindow)
	if err != nil {
		return RoundResult{}, fmt.Errorf("loading history: %w", err)
	}
	history := NewHistory(recent)

	docs, docWarnings := o.loadDocuments(ctx, r.DocIDs)

	result := RoundResult{
		UserMessageID:    userMsg.ID,
		CreatedMessages:  []storage.Message{},
		ActionRequestIDs: []string{},
	}
	for _, agent := range agents {
		msg := o.runAgent(ctx, r, userMsg.ID, agent, history, docs, docWarnings)
		if err := o.Messages.InsertMessage(ctx, msg); err != nil {
			return result, fmt.Errorf("saving %s message: %w", agent.ID, err)
		}
		o.publish(msg)

		history = history.Append(msg)
		result.CreatedMessages = append(result.CreatedMessages, msg)
		result.ActionRequestIDs = append(result.ActionRequestIDs, msg.ActionRequestIDs...)
	}

	o.logger.Info("conversation round complete",
		"thread_id", r.ThreadID, "agents", len(agents), "action_requests", len(result.ActionRequestIDs))
	return result, nil
}

// runAgent produces one agent's message. It never fails: problems become
// warnings on the message.
func (o *Orchestrator) runAgent(ctx context.Context, r Round, userMsgID string, agent Agent, history History, docs string, docWarnings []string) storage.Message {
	msg := storage.Message{
		ID:               idgen.Message(),
		ThreadID:         r.ThreadID,
		Role:             "agent",
		AgentID:          agent.ID,
		AgentName:        agent.Name,
		Warnings:         append([]string{}, docWarnings...),
		ActionRequestIDs: []string{},
	}

	summary := ""
	if agent.KnowledgeScope != "" && o.Knowledge != nil {
		s, err := o.Knowledge.Summary(ctx, agent.KnowledgeScope)
		if err != nil {
			o.logger.Warn("loading knowledge summary", "agent_id", agent.ID, "error", err)
			msg.Warnings = append(msg.Warnings, "knowledge summary unavailable")
		}
		summary = s
	}

	earlier, round := history.Split(userMsgID, o.cfg.HistoryTurns)
	prompt := o.composer.Prompt(PromptInput{
		Agent:        agent,
		History:      earlier,
		Round:        round,
		Knowledge:    summary,
		Documents:    docs,
		MeetingNotes: r.MeetingNotes,
		Intent:       r.Intent,
		Message:      r.Message,
	})

	var out AgentOutput
	err := o.Runner.Run(ctx, workflow.Request{
		WorkflowID:           agent.workflow(),
		Prompt:               prompt,
		Schema:               outputSchema,
		InstructionsOverride: o.composer.Instructions(agent, o.cfg.ActionTypes),
		Timeout:              o.cfg.Timeout,
		MaxRetries:           o.cfg.MaxRetries,
	}, &out)
	if err != nil {
		o.logger.Warn("agent turn failed", "thread_id", r.ThreadID, "agent_id", agent.ID, "error", err)
		msg.Content = FallbackContent
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("%s could not answer: %s", agent.Name, describeFailure(err)))
		msg.CreatedAt = o.now().UTC()
		return msg
	}

	msg.Content = strings.TrimSpace(out.Answer)
	if msg.Content == "" {
		msg.Content = FallbackContent
		msg.Warnings = append(msg.Warnings, fmt.Sprintf("%s returned an empty answer", agent.Name))
	}

	for _, req := range out.ActionRequests {
		payload, err := decodePayload(req.Payload)
		if err != nil {
			msg.Warnings = append(msg.Warnings, fmt.Sprintf("action %s not queued: %v", req.ActionType, err))
			continue
		}
		a, err := o.Actions.Propose(ctx, actions.Proposal{
			ActionType:  req.ActionType,
			Summary:     req.Summary,
			Payload:     payload,
			RequestedBy: storage.Requester{AgentID: agent.ID, Name: agent.Name},
			ThreadID:    r.ThreadID,
		})
		if err != nil {
			o.logger.Warn("agent action request rejected", "agent_id", agent.ID, "action_type", req.ActionType, "error", err)
			msg.Warnings = append(msg.Warnings, fmt.Sprintf("action %s not queued: %v", req.ActionType, err))
			continue
		}
		msg.ActionRequestIDs = append(msg.ActionRequestIDs, a.ID)
	}

	if len(out.KnowledgeUpdates) > 0 && o.Knowledge != nil {
		if _, err := o.Knowledge.Record(ctx, agent.ID, out.KnowledgeUpdates); err != nil {
			o.logger.Warn("recording knowledge", "agent_id", agent.ID, "error", err)
			msg.Warnings = append(msg.Warnings, fmt.Sprintf("knowledge updates not recorded: %v", err))
		}
	}

	msg.CreatedAt = o.now().UTC()
	return msg
}

func describeFailure(err error) string {
	var se *workflow.SchemaError
	switch {
	case errors.Is(err, workflow.ErrTimeout):
		return "the request timed out"
	case errors.As(err, &se):
		return fmt.Sprintf("output was invalid after %d attempts", se.Attempts)
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return "its workflow is not configured"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	}
	return "the generation service failed"
}

func (o *Orchestrator) loadDocuments(ctx context.Context, ids []string) (string, []string) {
	if len(ids) == 0 || o.Documents == nil {
		return "", nil
	}
	res, err := o.Documents.Load(ctx, ids)
	if err != nil {
		o.logger.Warn("loading document context", "error", err)
		return "", []string{"document context unavailable"}
	}
	return res.Render(), res.Warnings
}

func (o *Orchestrator) dispatchMentions(ctx context.Context, r Round) {
	if o.Mentions == nil {
		return
	}
	actor := r.Actor.Name
	if actor == "" {
		actor = "Someone"
	}
	link := "/conversation/" + r.ThreadID
	if o.cfg.PortalURL != "" {
		link = strings.TrimRight(o.cfg.PortalURL, "/") + link
	}
	notified, err := o.Mentions.Dispatch(ctx, mentions.Mention{
		Text:    r.Message,
		ActorID: r.Actor.ID,
		Title:   actor + " mentioned you",
		Link:    link,
	})
	if err != nil {
		o.logger.Warn("dispatching mentions", "thread_id", r.ThreadID, "error", err)
		return
	}
	if len(notified) > 0 {
		o.logger.Debug("mentions dispatched", "thread_id", r.ThreadID, "recipients", len(notified))
	}
}

func (o *Orchestrator) publish(msg storage.Message) {
	if o.Hub != nil {
		o.Hub.Publish(msg)
	}
}

// ListMessages returns up to limit of the thread's newest messages, oldest first.
func (o *Orchestrator) ListMessages(ctx context.Context, threadID string, limit int) ([]storage.Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, &ValidationError{Field: "threadId", Message: "is required"}
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	msgs, err := o.Messages.RecentMessages(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []storage.Message{}
	}
	return msgs, nil
}

// Agents returns the configured agents.
func (o *Orchestrator) Agents() []Agent {
	return o.Roster.Agents()
}

// decodePayload turns an agent's encoded payload into the raw object the
// action queue takes. An empty payload is an empty object.
func decodePayload(encoded string) (json.RawMessage, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(encoded), &obj); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	return json.RawMessage(encoded), nil
}

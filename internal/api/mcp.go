package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Conversation Conversation
	Actions      ActionQueue
	// Operator is the identity MCP calls act as. The stdio transport is
	// local, so the operator is trusted as an admin.
	Operator Principal
	Version  string
}

// NewMCPServer creates an MCP server with the portal tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"asiportal",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("asiportal: talk to the portal agents and review the actions they propose. Nothing runs until approved."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_actions",
			mcp.WithDescription("List recent actions, newest first."),
			mcp.WithString("status", mcp.Description("Filter by status: pending, approved, rejected, executed or failed")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of actions (default 20)")),
		),
		mcpListActions(deps),
	)

	s.AddTool(
		mcp.NewTool("propose_action",
			mcp.WithDescription("Propose an action. It stays pending until an administrator approves it."),
			mcp.WithString("actionType", mcp.Description("One of: "+kindNames()), mcp.Required()),
			mcp.WithString("summary", mcp.Description("Short human-readable summary")),
			mcp.WithString("payload", mcp.Description("Action payload as a JSON object")),
			mcp.WithString("threadId", mcp.Description("Conversation thread the action belongs to")),
		),
		mcpProposeAction(deps),
	)

	s.AddTool(
		mcp.NewTool("decide_actions",
			mcp.WithDescription("Approve or reject pending actions. Approved actions execute immediately."),
			mcp.WithString("operation", mcp.Description("approve or reject"), mcp.Required(), mcp.Enum("approve", "reject")),
			mcp.WithArray("actionIds", mcp.Description("Ids of the actions to decide"), mcp.Required()),
		),
		mcpDecideActions(deps),
	)

	s.AddTool(
		mcp.NewTool("list_messages",
			mcp.WithDescription("List the newest messages of a conversation thread, oldest first."),
			mcp.WithString("threadId", mcp.Description("Conversation thread id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of messages (default 100)")),
		),
		mcpListMessages(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Post a message to a thread and collect the agents' answers."),
			mcp.WithString("threadId", mcp.Description("Conversation thread id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("Message text; @name mentions notify portal users"), mcp.Required()),
			mcp.WithArray("agents", mcp.Description("Agent ids to answer, in order (default roster when omitted)")),
			mcp.WithArray("docIds", mcp.Description("Controlled document ids to include as context")),
		),
		mcpSendMessage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"portal://actions/pending",
			"Pending Actions",
			mcp.WithResourceDescription("Actions waiting for an administrator decision"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePendingActions(deps),
	)

	return s
}

func mcpListActions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		list, err := deps.Actions.List(ctx, storage.ActionFilter{
			Status: req.GetString("status", ""),
			Limit:  limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("listing actions: %v", err)), nil
		}
		if list == nil {
			list = []storage.Action{}
		}
		return mcpJSON(list)
	}
}

func mcpProposeAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		actionType, err := req.RequireString("actionType")
		if err != nil {
			return mcpError("actionType is required"), nil
		}
		var payload json.RawMessage
		if raw := strings.TrimSpace(req.GetString("payload", "")); raw != "" {
			if !json.Valid([]byte(raw)) {
				return mcpError("payload must be valid JSON"), nil
			}
			payload = json.RawMessage(raw)
		}

		a, err := deps.Actions.Propose(ctx, actions.Proposal{
			ActionType:  actionType,
			Summary:     req.GetString("summary", ""),
			Payload:     payload,
			RequestedBy: storage.Requester{UserID: deps.Operator.ID, Name: deps.Operator.Name},
			ThreadID:    req.GetString("threadId", ""),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Proposed action %s (%s), status %s", a.ID, a.ActionType, a.Status)), nil
	}
}

func mcpDecideActions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		op, err := req.RequireString("operation")
		if err != nil {
			return mcpError("operation is required"), nil
		}
		ids := req.GetStringSlice("actionIds", nil)
		outcomes, err := deps.Actions.Decide(ctx, ids, actions.Operation(op), deps.Operator.ID)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(outcomes)
	}
}

func mcpListMessages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("threadId")
		if err != nil {
			return mcpError("threadId is required"), nil
		}
		msgs, err := deps.Conversation.ListMessages(ctx, threadID, req.GetInt("limit", 0))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpJSON(msgs)
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID, err := req.RequireString("threadId")
		if err != nil {
			return mcpError("threadId is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		res, err := deps.Conversation.RunRound(ctx, conversation.Round{
			ThreadID: threadID,
			Message:  message,
			Agents:   req.GetStringSlice("agents", nil),
			DocIDs:   req.GetStringSlice("docIds", nil),
			Actor:    conversation.Actor{ID: deps.Operator.ID, Name: deps.Operator.Name},
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}

		var sb strings.Builder
		for _, m := range res.CreatedMessages {
			fmt.Fprintf(&sb, "%s: %s\n", m.AgentName, m.Content)
			for _, warn := range m.Warnings {
				fmt.Fprintf(&sb, "  (warning: %s)\n", warn)
			}
		}
		if len(res.ActionRequestIDs) > 0 {
			fmt.Fprintf(&sb, "\nPending actions awaiting approval: %s\n", strings.Join(res.ActionRequestIDs, ", "))
		}
		return mcpText(strings.TrimSpace(sb.String())), nil
	}
}

func mcpResourcePendingActions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Actions.List(ctx, storage.ActionFilter{Status: string(actions.StatusPending), Limit: 100})
		if err != nil {
			return nil, fmt.Errorf("failed to list pending actions: %w", err)
		}
		if list == nil {
			list = []storage.Action{}
		}

		b, err := json.Marshal(list)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal actions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func kindNames() string {
	names := make([]string, len(actions.Kinds))
	for i, k := range actions.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

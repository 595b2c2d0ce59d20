package conversation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ASI-Josh/asiportal/internal/storage"
)

const (
	defaultMaxContextTokens = 6000
	// minRoundTurnTokens bounds how far one reply from the current round is
	// cut, however many agents have already answered.
	minRoundTurnTokens = 200
)

// PromptInput is everything one agent turn is built from. History is the
// thread before the current message; Round holds what other agents already
// answered to it.
type PromptInput struct {
	Agent        Agent
	History      []storage.Message
	Round        []storage.Message
	Knowledge    string
	Documents    string
	MeetingNotes string
	Intent       string
	Message      string
	ActionTypes  []string
}

// Composer assembles agent prompts. History is trimmed oldest first to keep
// the prompt under MaxContextTokens. Replies from the current round are always
// kept, each cut to its share of half the budget.
type Composer struct {
	MaxContextTokens int
}

// NewComposer creates a Composer with the given token budget.
// If maxContextTokens <= 0, the default (6000) is used.
func NewComposer(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Instructions returns the system instructions for an agent turn.
func (c *Composer) Instructions(a Agent, actionTypes []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s", a.Name)
	if a.Role != "" {
		fmt.Fprintf(&sb, ", %s", a.Role)
	}
	sb.WriteString(", taking part in a shared conversation with a portal administrator and other agents.\n")
	if a.Instructions != "" {
		sb.WriteString(strings.TrimSpace(a.Instructions))
		sb.WriteString("\n")
	}
	sb.WriteString("\nRespond with a JSON object with these fields:\n")
	sb.WriteString("- answer: your reply to the conversation.\n")
	sb.WriteString("- actionRequests: actions you propose. Nothing runs until an administrator approves it. Use an empty list when none are needed. Each payload is a string holding the action's fields as a JSON object, for example \"{\\\"title\\\":\\\"Spill\\\"}\".\n")
	sb.WriteString("- knowledgeUpdates: durable facts worth remembering, each with a summary, tags and a scope of admin or tech. Use an empty list when there are none.\n")
	if len(actionTypes) > 0 {
		fmt.Fprintf(&sb, "Allowed actionType values: %s.\n", strings.Join(actionTypes, ", "))
	}
	return sb.String()
}

// Prompt renders the user prompt for one agent turn.
func (c *Composer) Prompt(in PromptInput) string {
	var fixed strings.Builder
	section := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		fmt.Fprintf(&fixed, "[%s]\n%s\n\n", title, body)
	}
	section("Knowledge", in.Knowledge)
	section("Documents", in.Documents)
	section("Meeting Notes", in.MeetingNotes)
	section("Intent", in.Intent)

	request := fmt.Sprintf("[Current Message]\n%s\n", strings.TrimSpace(in.Message))

	round := c.roundReplies(in.Round)

	remaining := c.MaxContextTokens - EstimateTokens(fixed.String()) - EstimateTokens(request) - EstimateTokens(round)
	history := c.fitHistory(in.History, remaining)

	var sb strings.Builder
	if history != "" {
		sb.WriteString("[Conversation So Far]\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}
	sb.WriteString(fixed.String())
	sb.WriteString(request)
	if round != "" {
		sb.WriteString("\n[Replies This Round]\n")
		sb.WriteString(round)
	}
	return sb.String()
}

// roundReplies renders every reply of the current round, cutting long ones on
// a rune boundary.
func (c *Composer) roundReplies(msgs []storage.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	limit := c.MaxContextTokens / 2 / len(msgs)
	if limit < minRoundTurnTokens {
		limit = minRoundTurnTokens
	}
	var sb strings.Builder
	for _, m := range msgs {
		line := formatTurn(m)
		if EstimateTokens(line) > limit {
			line = truncateRunes(line, limit*4) + " [truncated]\n"
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// truncateRunes returns at most n bytes of s without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fitHistory keeps the newest lines that fit in budget tokens.
func (c *Composer) fitHistory(msgs []storage.Message, budget int) string {
	var lines []string
	for i := len(msgs) - 1; i >= 0; i-- {
		line := formatTurn(msgs[i])
		tokens := EstimateTokens(line)
		if tokens > budget {
			break
		}
		budget -= tokens
		lines = append(lines, line)
	}
	var sb strings.Builder
	for i := len(lines) - 1; i >= 0; i-- {
		sb.WriteString(lines[i])
	}
	return sb.String()
}

func formatTurn(m storage.Message) string {
	speaker := "User"
	if m.Role == "agent" {
		speaker = m.AgentName
		if speaker == "" {
			speaker = m.AgentID
		}
	}
	return fmt.Sprintf("%s: %s\n", speaker, strings.TrimSpace(m.Content))
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

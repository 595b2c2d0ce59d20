package engine

// Roles used in a workflow conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a workflow conversation: the agent instructions, the
// composed prompt, or a rejected answer followed by its correction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PullProgress is a model download update shown while the portal starts.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Percent returns the completed share in [0, 100], or -1 when the update
// carries no size.
func (p PullProgress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	if p.Completed >= p.Total {
		return 100
	}
	return int(p.Completed * 100 / p.Total)
}

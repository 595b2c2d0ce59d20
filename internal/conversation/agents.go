package conversation

import (
	"fmt"
	"strings"
)

// DefaultWorkflow is the workflow an agent runs when it names none.
const DefaultWorkflow = "agent-turn"

// Agent is one persona in the conversation loop.
type Agent struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Role         string `yaml:"role" json:"role"`
	Instructions string `yaml:"instructions" json:"instructions"`
	Workflow     string `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	// KnowledgeScope selects which knowledge summary the agent sees.
	KnowledgeScope string `yaml:"knowledgeScope,omitempty" json:"knowledgeScope,omitempty"`
}

func (a Agent) workflow() string {
	if a.Workflow == "" {
		return DefaultWorkflow
	}
	return a.Workflow
}

// Roster is the set of configured agents.
type Roster struct {
	agents   []Agent
	byID     map[string]Agent
	defaults []string
}

// NewRoster validates agents. defaults lists the agent ids used when a round
// names none; empty means every agent in roster order.
func NewRoster(agents []Agent, defaults []string) (*Roster, error) {
	r := &Roster{byID: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("agent with empty id")
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		r.agents = append(r.agents, a)
		r.byID[a.ID] = a
	}
	if len(r.agents) == 0 {
		return nil, fmt.Errorf("roster has no agents")
	}
	for _, id := range defaults {
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("default agent %q is not in the roster", id)
		}
	}
	r.defaults = defaults
	return r, nil
}

// Agents returns every agent in roster order.
func (r *Roster) Agents() []Agent {
	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Workflows returns the distinct workflow ids the roster needs.
func (r *Roster) Workflows() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range r.agents {
		if w := a.workflow(); !seen[w] {
			seen[w] = true
			ids = append(ids, w)
		}
	}
	return ids
}

// Resolve maps ids to agents in the given order. An empty list selects the
// defaults.
func (r *Roster) Resolve(ids []string) ([]Agent, error) {
	if len(ids) == 0 {
		ids = r.defaults
	}
	if len(ids) == 0 {
		return r.Agents(), nil
	}
	out := make([]Agent, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		a, ok := r.byID[id]
		if !ok {
			return nil, &ValidationError{Field: "agents", Message: fmt.Sprintf("unknown agent %q", id)}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, a)
	}
	return out, nil
}

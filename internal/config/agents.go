package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/knowledge"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

// AgentsFile is the YAML document that configures the agent roster and the
// workflows the agents and action handlers run.
type AgentsFile struct {
	Agents    []conversation.Agent  `yaml:"agents"`
	Defaults  []string              `yaml:"defaults,omitempty"`
	Workflows []workflow.Definition `yaml:"workflows"`
}

// DefaultAgents returns the built-in roster used when no agents file is set.
func DefaultAgents() AgentsFile {
	return AgentsFile{
		Agents: []conversation.Agent{
			{
				ID:             "ops",
				Name:           "Ops",
				Role:           "operations coordinator",
				Instructions:   "Keep the administrator's requests moving. Summarise decisions and propose concrete actions when something should happen outside the conversation.",
				KnowledgeScope: knowledge.ScopeAdmin,
			},
			{
				ID:             "tech",
				Name:           "Tech",
				Role:           "technical lead",
				Instructions:   "Answer technical questions precisely. Point out risks and record durable technical facts as knowledge updates.",
				KnowledgeScope: knowledge.ScopeTech,
			},
			{
				ID:             "ims",
				Name:           "IMS",
				Role:           "integrated management system compliance officer",
				Instructions:   "Keep controlled documents, corrective actions and incidents in order. Propose document drafts and reviews rather than describing them.",
				KnowledgeScope: knowledge.ScopeAdmin,
			},
		},
		Workflows: []workflow.Definition{
			{
				ID:           conversation.DefaultWorkflow,
				Instructions: "You are an agent in an administrative portal. Reply with JSON only.",
			},
			{
				ID:           actions.DraftWorkflowID,
				Instructions: "You draft controlled management-system documents. Write clear, auditable text. Reply with JSON only.",
			},
		},
	}
}

// LoadAgents reads the agents file at path, or returns the built-in roster
// when path is empty. Workflows missing from the file are filled in from the
// built-in set.
func LoadAgents(path string) (AgentsFile, error) {
	builtin := DefaultAgents()
	if path == "" {
		return builtin, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return AgentsFile{}, fmt.Errorf("reading agents file: %w", err)
	}
	var f AgentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return AgentsFile{}, fmt.Errorf("parsing agents file %s: %w", path, err)
	}
	if len(f.Agents) == 0 {
		return AgentsFile{}, fmt.Errorf("agents file %s defines no agents", path)
	}

	have := make(map[string]bool, len(f.Workflows))
	for _, w := range f.Workflows {
		if w.ID == "" {
			return AgentsFile{}, fmt.Errorf("agents file %s: workflow with empty id", path)
		}
		have[w.ID] = true
	}
	for _, w := range builtin.Workflows {
		if !have[w.ID] {
			f.Workflows = append(f.Workflows, w)
		}
	}
	return f, nil
}

// WithModel returns the workflows with an empty Model set to model.
func (f AgentsFile) WithModel(model string) []workflow.Definition {
	out := make([]workflow.Definition, len(f.Workflows))
	for i, w := range f.Workflows {
		if w.Model == "" {
			w.Model = model
		}
		out[i] = w
	}
	return out
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/conversation"
)

func TestLoadAgentsDefaults(t *testing.T) {
	f, err := LoadAgents("")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Agents) != 3 {
		t.Fatalf("got %d built-in agents, want 3", len(f.Agents))
	}
	if _, err := conversation.NewRoster(f.Agents, f.Defaults); err != nil {
		t.Errorf("built-in roster invalid: %v", err)
	}
	assertWorkflows(t, f, conversation.DefaultWorkflow, actions.DraftWorkflowID)
}

func TestLoadAgentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - id: auditor
    name: Auditor
    role: internal auditor
    knowledgeScope: admin
    workflow: audit-turn
defaults: [auditor]
workflows:
  - id: audit-turn
    model: mistral
    instructions: Audit things.
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := LoadAgents(path)
	if err != nil {
		t.Fatalf("LoadAgents: %v", err)
	}
	if len(f.Agents) != 1 || f.Agents[0].Workflow != "audit-turn" || f.Agents[0].KnowledgeScope != "admin" {
		t.Errorf("agents = %+v", f.Agents)
	}
	if len(f.Defaults) != 1 || f.Defaults[0] != "auditor" {
		t.Errorf("defaults = %v", f.Defaults)
	}
	// Built-in workflows are added alongside the file's own.
	assertWorkflows(t, f, "audit-turn", conversation.DefaultWorkflow, actions.DraftWorkflowID)

	defs := f.WithModel("llama3.2")
	for _, d := range defs {
		want := "llama3.2"
		if d.ID == "audit-turn" {
			want = "mistral"
		}
		if d.Model != want {
			t.Errorf("workflow %s model = %q, want %q", d.ID, d.Model, want)
		}
	}
}

func TestLoadAgentsErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":  "agents: []\n",
		"broken.yaml": "agents: [\n",
		"noid.yaml":   "agents:\n  - id: a\nworkflows:\n  - model: x\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadAgents(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadAgents(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}

func assertWorkflows(t *testing.T, f AgentsFile, ids ...string) {
	t.Helper()
	have := make(map[string]bool)
	for _, w := range f.Workflows {
		have[w.ID] = true
	}
	for _, id := range ids {
		if !have[id] {
			t.Errorf("workflow %q missing", id)
		}
	}
}

// Package workflow runs structured text-generation calls whose output must
// satisfy a JSON schema.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ASI-Josh/asiportal/internal/engine"
)

const defaultTimeout = 60 * time.Second

const correctiveInstruction = "Your previous output was invalid (%s). Return valid JSON only, matching the required schema exactly, with no prose or markdown."

// Generator is the text-generation call behind a workflow.
type Generator interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema json.RawMessage) (string, error)
}

// Definition configures one workflow: the model it runs on and its default
// system instructions.
type Definition struct {
	ID           string `yaml:"id" json:"id"`
	Model        string `yaml:"model" json:"model"`
	Instructions string `yaml:"instructions" json:"instructions"`
}

// Request is one structured generation call.
type Request struct {
	WorkflowID string
	Prompt     string
	Schema     *Schema
	// InstructionsOverride replaces the workflow's own instructions when set.
	InstructionsOverride string
	// Timeout covers every attempt together. Zero uses the runner default.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after an invalid response.
	MaxRetries int
}

// Runner resolves workflows and enforces their output schema.
type Runner struct {
	gen            Generator
	workflows      map[string]Definition
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewRunner creates a Runner over the given workflow definitions.
func NewRunner(gen Generator, defs []Definition) *Runner {
	workflows := make(map[string]Definition, len(defs))
	for _, d := range defs {
		workflows[d.ID] = d
	}
	return &Runner{
		gen:            gen,
		workflows:      workflows,
		defaultTimeout: defaultTimeout,
		logger:         slog.Default(),
	}
}

// SetDefaultTimeout changes the deadline used when a request has none.
func (r *Runner) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		r.defaultTimeout = d
	}
}

// Has reports whether id names a configured workflow.
func (r *Runner) Has(id string) bool {
	_, ok := r.workflows[id]
	return ok
}

// Models returns the distinct models used by the configured workflows.
func (r *Runner) Models() []string {
	seen := make(map[string]bool)
	var models []string
	for _, d := range r.workflows {
		if d.Model != "" && !seen[d.Model] {
			seen[d.Model] = true
			models = append(models, d.Model)
		}
	}
	return models
}

// Run calls the workflow until it returns output valid against req.Schema,
// then decodes that output into out. It makes at most MaxRetries+1 calls.
// Exceeding the deadline returns ErrTimeout; exhausting the attempts returns
// a *SchemaError. Engine failures are returned without retry.
func (r *Runner) Run(ctx context.Context, req Request, out any) error {
	def, ok := r.workflows[req.WorkflowID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorkflow, req.WorkflowID)
	}
	if req.Schema == nil {
		return fmt.Errorf("workflow %s: schema is required", req.WorkflowID)
	}
	maxRetries := max(req.MaxRetries, 0)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	instructions := def.Instructions
	if req.InstructionsOverride != "" {
		instructions = req.InstructionsOverride
	}
	messages := []engine.Message{
		{Role: engine.RoleSystem, Content: instructions},
		{Role: engine.RoleUser, Content: req.Prompt},
	}

	var lastErr error
	attempts := 0
	for attempts < maxRetries+1 {
		if err := ctx.Err(); err != nil {
			return r.ctxError(ctx, req.WorkflowID, timeout)
		}
		attempts++

		raw, err := r.gen.Chat(ctx, def.Model, messages, req.Schema.JSON())
		if err != nil {
			if ctx.Err() != nil {
				return r.ctxError(ctx, req.WorkflowID, timeout)
			}
			return fmt.Errorf("workflow %s: %w", req.WorkflowID, err)
		}

		body := stripFences(raw)
		if verr := req.Schema.Validate([]byte(body)); verr != nil {
			lastErr = verr
			r.logger.Warn("workflow output failed schema",
				"workflow", req.WorkflowID, "attempt", attempts, "error", verr)
			messages = append(messages,
				engine.Message{Role: engine.RoleAssistant, Content: raw},
				engine.Message{Role: engine.RoleUser, Content: fmt.Sprintf(correctiveInstruction, verr)},
			)
			continue
		}

		if out != nil {
			if err := json.Unmarshal([]byte(body), out); err != nil {
				return fmt.Errorf("workflow %s: decoding output: %w", req.WorkflowID, err)
			}
		}
		return nil
	}

	return &SchemaError{WorkflowID: req.WorkflowID, Attempts: attempts, Err: lastErr}
}

func (r *Runner) ctxError(ctx context.Context, id string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("workflow %s: %w after %s", id, ErrTimeout, timeout)
	}
	return fmt.Errorf("workflow %s: %w", id, ctx.Err())
}

package engine

import (
	"context"
	"encoding/json"
)

// Engine abstracts a text-generation backend (a local Ollama server or an
// OpenAI-compatible cloud endpoint). The workflow runner talks to this
// interface instead of a concrete client.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is set, output constrained to that JSON schema is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema json.RawMessage) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

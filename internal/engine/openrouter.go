package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ASI-Josh/asiportal/internal/proxy"
)

// OpenRouterEngine adapts the OpenRouter proxy client to the Engine interface.
// Models are hosted remotely, so PullModel only reports whether the model exists.
type OpenRouterEngine struct {
	client *proxy.Client
}

func NewOpenRouterEngine(client *proxy.Client) *OpenRouterEngine {
	return &OpenRouterEngine{client: client}
}

func (e *OpenRouterEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema json.RawMessage) (string, error) {
	msgs := make([]proxy.Message, len(messages))
	for i, m := range messages {
		msgs[i] = proxy.Message{Role: m.Role, Content: m.Content}
	}
	return e.client.Complete(ctx, model, msgs, jsonSchema)
}

func (e *OpenRouterEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}

func (e *OpenRouterEngine) ListModels(ctx context.Context) ([]string, error) {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.ID
	}
	return names, nil
}

func (e *OpenRouterEngine) HasModel(ctx context.Context, name string) bool {
	names, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (e *OpenRouterEngine) PullModel(ctx context.Context, name string, _ func(PullProgress)) error {
	if e.HasModel(ctx, name) {
		return nil
	}
	return fmt.Errorf("model %s is not offered by OpenRouter", name)
}

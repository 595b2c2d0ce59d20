package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ASI-Josh/asiportal/internal/proxy"
)

// Backend names accepted by engine.backend.
const (
	BackendAuto       = "auto"
	BackendOllama     = "ollama"
	BackendOpenRouter = "openrouter"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend           string
	OllamaBaseURL     string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
}

// Detect returns the engine named by cfg.Backend. With "auto" (or empty) it
// prefers a reachable local Ollama server and falls back to OpenRouter when an
// API key is configured.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return nil, errors.New("openrouter backend requires openrouter.api_key")
		}
		return newOpenRouter(cfg), nil
	case BackendAuto, "":
		local := NewOllamaEngine(cfg.OllamaBaseURL)
		if local.IsRunning(ctx) || cfg.OpenRouterAPIKey == "" {
			return local, nil
		}
		return newOpenRouter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}

func newOpenRouter(cfg DetectConfig) *OpenRouterEngine {
	if cfg.OpenRouterBaseURL != "" {
		return NewOpenRouterEngine(proxy.NewClientWithBaseURL(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL))
	}
	return NewOpenRouterEngine(proxy.NewClient(cfg.OpenRouterAPIKey))
}

package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect_Ollama(t *testing.T) {
	e, err := Detect(context.Background(), DetectConfig{Backend: BackendOllama, OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_OpenRouterNeedsKey(t *testing.T) {
	if _, err := Detect(context.Background(), DetectConfig{Backend: BackendOpenRouter}); err == nil {
		t.Fatal("expected error without API key")
	}
	e, err := Detect(context.Background(), DetectConfig{Backend: BackendOpenRouter, OpenRouterAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenRouterEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenRouterEngine", e)
	}
}

func TestDetect_AutoFallsBackToOpenRouter(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	e, err := Detect(context.Background(), DetectConfig{Backend: BackendAuto, OllamaBaseURL: down.URL, OpenRouterAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenRouterEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenRouterEngine", e)
	}
}

func TestDetect_AutoPrefersLocal(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.2:latest"))
	}))
	defer up.Close()

	e, err := Detect(context.Background(), DetectConfig{OllamaBaseURL: up.URL, OpenRouterAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_Unknown(t *testing.T) {
	if _, err := Detect(context.Background(), DetectConfig{Backend: "mlx"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

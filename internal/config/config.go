package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Storage      StorageConfig
	Engine       EngineConfig
	Ollama       OllamaConfig
	OpenRouter   OpenRouterConfig
	Auth         AuthConfig
	Workflow     WorkflowConfig
	Conversation ConversationConfig
	Mail         MailConfig
	Social       SocialConfig
	Portal       PortalConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type EngineConfig struct {
	// Backend is auto, ollama or openrouter.
	Backend string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenRouterConfig struct {
	APIKey string
	Model  string
}

type AuthConfig struct {
	// AdminToken is a static bearer token with the admin role.
	AdminToken string
	// JWTSecret verifies HS256 bearer tokens. Empty disables JWT auth.
	JWTSecret string
}

type WorkflowConfig struct {
	Timeout    string
	MaxRetries int
}

type ConversationConfig struct {
	HistoryWindow int
	HistoryTurns  int
	AgentsFile    string
}

type MailConfig struct {
	SMTPAddr string
	From     string
	Username string
	Password string
}

type SocialConfig struct {
	// Endpoints is a comma separated list of shape=url pairs.
	Endpoints string
	Token     string
	Author    string
}

type PortalConfig struct {
	BaseURL string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Engine:  EngineConfig{Backend: "auto"},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		OpenRouter: OpenRouterConfig{
			Model: "openai/gpt-4o-mini",
		},
		Workflow: WorkflowConfig{
			Timeout:    "60s",
			MaxRetries: 2,
		},
		Conversation: ConversationConfig{
			HistoryWindow: 30,
			HistoryTurns:  12,
		},
		Mail: MailConfig{
			From: "portal@localhost",
		},
		Social: SocialConfig{
			Endpoints: "ugc=https://api.linkedin.com/v2/ugcPosts,rest=https://api.linkedin.com/rest/posts",
		},
		Portal: PortalConfig{BaseURL: "http://localhost:4100"},
	}
}

// Load reads configuration from the YAML config file, the secrets file and
// environment variables, in increasing order of precedence.
//
// The config file lives at $XDG_CONFIG_HOME/asiportal/config.yaml and
// secrets at $XDG_DATA_HOME/asiportal/secrets.json. Environment variables
// (ASIPORTAL_*) override both.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), newFileSecrets(secretsFilePath()))
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	if err := applySecrets(&cfg, secrets); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Engine.Backend {
	case "auto", "ollama", "openrouter":
	default:
		return fmt.Errorf("engine.backend must be auto, ollama or openrouter, got %q", c.Engine.Backend)
	}
	if c.Engine.Backend == "openrouter" && c.OpenRouter.APIKey == "" {
		return fmt.Errorf("missing required config: OpenRouter API key. " +
			"Set it via environment variable ASIPORTAL_OPENROUTER_API_KEY or `asiportal config set openrouter.api_key`")
	}
	if _, err := c.WorkflowTimeout(); err != nil {
		return err
	}
	if c.Workflow.MaxRetries < 0 {
		return fmt.Errorf("workflow.max_retries must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// WorkflowTimeout parses workflow.timeout.
func (c Config) WorkflowTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Workflow.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid workflow.timeout %q: %w", c.Workflow.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("workflow.timeout must be positive")
	}
	return d, nil
}

// Model returns the generation model for a resolved engine backend.
func (c Config) Model(backend string) string {
	if backend == "openrouter" {
		return c.OpenRouter.Model
	}
	return c.Ollama.Model
}

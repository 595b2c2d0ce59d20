package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ASIPORTAL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "ASIPORTAL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASIPORTAL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "engine.backend", typ: kString, env: "ASIPORTAL_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "ollama.base_url", typ: kString, env: "ASIPORTAL_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "ASIPORTAL_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openrouter.model", typ: kString, env: "ASIPORTAL_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "ASIPORTAL_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "auth.admin_token", typ: kString, env: "ASIPORTAL_AUTH_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.AdminToken },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "ASIPORTAL_AUTH_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "workflow.timeout", typ: kString, env: "ASIPORTAL_WORKFLOW_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Workflow.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Workflow.Timeout },
	},
	{
		key: "workflow.max_retries", typ: kInt, env: "ASIPORTAL_WORKFLOW_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Workflow.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Workflow.MaxRetries },
	},
	{
		key: "conversation.history_window", typ: kInt, env: "ASIPORTAL_CONVERSATION_HISTORY_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Conversation.HistoryWindow = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.HistoryWindow },
	},
	{
		key: "conversation.history_turns", typ: kInt, env: "ASIPORTAL_CONVERSATION_HISTORY_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Conversation.HistoryTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.HistoryTurns },
	},
	{
		key: "conversation.agents_file", typ: kString, env: "ASIPORTAL_CONVERSATION_AGENTS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Conversation.AgentsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Conversation.AgentsFile },
	},
	{
		key: "mail.smtp_addr", typ: kString, env: "ASIPORTAL_MAIL_SMTP_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Mail.SMTPAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.SMTPAddr },
	},
	{
		key: "mail.from", typ: kString, env: "ASIPORTAL_MAIL_FROM",
		apply:   func(cfg *Config, v any) { cfg.Mail.From = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.From },
	},
	{
		key: "mail.username", typ: kString, env: "ASIPORTAL_MAIL_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.Mail.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.Username },
	},
	{
		key: "mail.password", typ: kString, env: "ASIPORTAL_MAIL_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.Password },
	},
	{
		key: "social.endpoints", typ: kString, env: "ASIPORTAL_SOCIAL_ENDPOINTS",
		apply:   func(cfg *Config, v any) { cfg.Social.Endpoints = v.(string) },
		extract: func(cfg Config) any { return cfg.Social.Endpoints },
	},
	{
		key: "social.token", typ: kString, env: "ASIPORTAL_SOCIAL_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Social.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Social.Token },
	},
	{
		key: "social.author", typ: kString, env: "ASIPORTAL_SOCIAL_AUTHOR",
		apply:   func(cfg *Config, v any) { cfg.Social.Author = v.(string) },
		extract: func(cfg Config) any { return cfg.Social.Author },
	},
	{
		key: "portal.base_url", typ: kString, env: "ASIPORTAL_PORTAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.BaseURL },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

// applySecrets fills secret keys from the secret store. Secrets are always
// strings.
func applySecrets(cfg *Config, store SecretStore) error {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		v, err := store.Get(s.key)
		if errors.Is(err, ErrSecretNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading secret %s: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

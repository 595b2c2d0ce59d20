package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ASI-Josh/asiportal/internal/actions"
	"github.com/ASI-Josh/asiportal/internal/config"
	"github.com/ASI-Josh/asiportal/internal/conversation"
	"github.com/ASI-Josh/asiportal/internal/doccontext"
	"github.com/ASI-Josh/asiportal/internal/docseq"
	"github.com/ASI-Josh/asiportal/internal/engine"
	"github.com/ASI-Josh/asiportal/internal/knowledge"
	"github.com/ASI-Josh/asiportal/internal/mailer"
	"github.com/ASI-Josh/asiportal/internal/mentions"
	"github.com/ASI-Josh/asiportal/internal/storage"
	"github.com/ASI-Josh/asiportal/internal/stream"
	"github.com/ASI-Josh/asiportal/internal/workflow"
)

// app is the fully wired portal shared by the HTTP and MCP entry points.
type app struct {
	store  *storage.Store
	orch   *conversation.Orchestrator
	queue  *actions.Queue
	hub    *stream.Hub
	mailer *mailer.Worker
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	eng, err := engine.Detect(ctx, engine.DetectConfig{
		Backend:          cfg.Engine.Backend,
		OllamaBaseURL:    cfg.Ollama.BaseURL,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	backend := engine.BackendOllama
	if _, ok := eng.(*engine.OpenRouterEngine); ok {
		backend = engine.BackendOpenRouter
	}
	slog.Info("inference engine selected", "backend", backend)

	agentsFile, err := config.LoadAgents(cfg.Conversation.AgentsFile)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.WorkflowTimeout()
	if err != nil {
		return nil, err
	}
	runner := workflow.NewRunner(eng, agentsFile.WithModel(cfg.Model(backend)))
	runner.SetDefaultTimeout(timeout)

	roster, err := conversation.NewRoster(agentsFile.Agents, agentsFile.Defaults)
	if err != nil {
		return nil, fmt.Errorf("loading agents: %w", err)
	}
	for _, id := range roster.Workflows() {
		if !runner.Has(id) {
			return nil, fmt.Errorf("agents reference unknown workflow %q", id)
		}
	}

	if err := engine.EnsureReady(ctx, eng, runner.Models(), os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	deps := actions.Deps{
		Store:        store,
		Allocator:    docseq.NewAllocator(store),
		Drafter:      runner,
		Outbox:       mailer.NewOutbox(store),
		DraftTimeout: timeout,
		DraftRetries: cfg.Workflow.MaxRetries,
		PortalURL:    cfg.Portal.BaseURL,
	}
	if cfg.Social.Token != "" {
		endpoints, err := actions.ParseSocialEndpoints(cfg.Social.Endpoints)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Social = actions.NewSocialPoster(actions.SocialConfig{
			Endpoints: endpoints,
			Token:     cfg.Social.Token,
			Author:    cfg.Social.Author,
		})
	} else {
		slog.Warn("social.token not set, social posts will fail on approval")
	}
	queue := actions.NewQueue(store, actions.NewRegistry(deps))

	actionTypes := make([]string, len(actions.Kinds))
	for i, k := range actions.Kinds {
		actionTypes[i] = string(k)
	}

	hub := stream.NewHub()
	orch := conversation.New(conversation.Deps{
		Messages:  store,
		Runner:    runner,
		Actions:   queue,
		Knowledge: knowledge.NewManager(store),
		Documents: doccontext.NewLoader(store, filepath.Join(cfg.Storage.DataDir, "files")),
		Mentions:  mentions.NewDispatcher(store),
		Hub:       hub,
		Roster:    roster,
	}, conversation.Config{
		HistoryWindow: cfg.Conversation.HistoryWindow,
		HistoryTurns:  cfg.Conversation.HistoryTurns,
		Timeout:       timeout,
		MaxRetries:    cfg.Workflow.MaxRetries,
		ActionTypes:   actionTypes,
		PortalURL:     cfg.Portal.BaseURL,
	})

	var sender mailer.Sender
	if cfg.Mail.SMTPAddr != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Addr:     cfg.Mail.SMTPAddr,
			From:     cfg.Mail.From,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
	} else {
		slog.Warn("mail.smtp_addr not set, review mail is logged instead of sent")
		sender = mailer.NewLogSender(slog.Default())
	}

	return &app{
		store:  store,
		orch:   orch,
		queue:  queue,
		hub:    hub,
		mailer: mailer.NewWorker(store, sender, 0),
	}, nil
}

// setupLogging installs the default slog handler on stderr.
func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

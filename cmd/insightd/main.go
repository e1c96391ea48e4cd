package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/interviewloop/insightd/internal/agent"
	"github.com/interviewloop/insightd/internal/anthropic"
	"github.com/interviewloop/insightd/internal/api"
	"github.com/interviewloop/insightd/internal/config"
	"github.com/interviewloop/insightd/internal/coordinator"
	"github.com/interviewloop/insightd/internal/embedding"
	"github.com/interviewloop/insightd/internal/events"
	"github.com/interviewloop/insightd/internal/reconciler"
	"github.com/interviewloop/insightd/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("insightd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Anthropic-backed agent
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	invoker := agent.NewAnthropicInvoker(llm, db, slog.Default())
	slog.Info("agent ready", "model", cfg.AnthropicModel)

	// Embeddings (optional, insights still persist without vectors)
	var embedder embedding.Embedder
	if cfg.EmbeddingURL != "" {
		embedder = embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingModel)
		slog.Info("embedding client ready", "model", cfg.EmbeddingModel)
	} else {
		slog.Warn("embeddings not configured, semantic search vectors disabled")
	}

	// NATS
	bus, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Pipeline
	rec := reconciler.New(db, db, db, embedder, slog.Default())
	coord := coordinator.New(db, db, invoker, db, db, rec, bus, slog.Default())

	// Message events trigger detection
	if err := bus.Subscribe(events.SubjectMessageStored, coord.HandleMessageStored); err != nil {
		slog.Error("failed to subscribe to message events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, coord, db)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("insightd ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("insightd stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

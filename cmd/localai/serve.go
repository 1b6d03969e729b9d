package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jwhoakley/my-local-ai/internal/api"
	"github.com/jwhoakley/my-local-ai/internal/chat"
	"github.com/jwhoakley/my-local-ai/internal/config"
	"github.com/jwhoakley/my-local-ai/internal/health"
	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	fmt.Fprintf(os.Stderr, "localai version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := ollama.New(cfg.Ollama.BaseURL)
	if !client.IsRunning(ctx) {
		printError("Ollama is not reachable at %s; start it and the UI will reconnect", client.BaseURL())
	}

	store := chat.NewStore(cfg.Chat.SystemPrompt)
	handler := api.NewHandler(api.Deps{
		Ollama:   client,
		Sessions: store,
		Defaults: api.ChatDefaults{
			Model:       cfg.Chat.DefaultModel,
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		},
		Logger: slog.Default(),
	})

	interval, err := time.ParseDuration(cfg.Health.Interval)
	if err != nil {
		slog.Warn("invalid health interval, using default 60s", "value", cfg.Health.Interval, "error", err)
		interval = 60 * time.Second
	}
	monitor := health.New(client, interval, slog.Default())

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "localai listening on http://%s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := monitor.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	// Graceful shutdown with timeout once the signal lands or a worker
	// fails.
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jwhoakley/my-local-ai/internal/api"
	"github.com/jwhoakley/my-local-ai/internal/chat"
	"github.com/jwhoakley/my-local-ai/internal/config"
	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		// Check our own server.
		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}
		if resp, err := client.Get(serverURL + "/api/health"); err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			printStatus("Server", "running on port %d", cfg.Server.Port)
		}

		// Check Ollama.
		oc := ollama.New(cfg.Ollama.BaseURL)
		if !oc.IsRunning(cmd.Context()) {
			printStatus("Ollama", "not running")
		} else {
			printStatus("Ollama", "running at %s", oc.BaseURL())
			if models, err := oc.ListModels(cmd.Context()); err == nil {
				printStatus("Models", "%d installed", len(models))
			}
		}

		printStatus("Default model", "%s", cfg.Chat.DefaultModel)
		return nil
	},
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed on the Ollama server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		oc := ollama.New(cfg.Ollama.BaseURL)
		models, err := oc.ListModels(cmd.Context())
		if err != nil {
			return err
		}

		if len(models) == 0 {
			fmt.Println("No models installed. Pull one with: localai pull <name>")
			return nil
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	},
}

// --- pull ---

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model onto the Ollama server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		oc := ollama.New(cfg.Ollama.BaseURL)
		printStep("Pulling %s from %s", name, oc.BaseURL())

		last := ""
		for line := range oc.StreamPull(ctx, name) {
			last = line
			fmt.Fprintf(os.Stderr, "  %s\n", line)
		}
		if last == "" {
			last = "<no output>"
		}

		// The progress stream has no trustworthy terminal marker; the
		// catalog decides.
		if !oc.HasModel(ctx, name) {
			printError("pull finished but %s is not in the catalog", name)
			return fmt.Errorf("pull failed: %s", last)
		}
		printSuccess("Pulled %s", name)
		return nil
	},
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a one-shot chat message and stream the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = cfg.Chat.DefaultModel
		}
		opts := ollama.ChatOptions{
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}
		if cmd.Flags().Changed("temperature") {
			opts.Temperature, _ = cmd.Flags().GetFloat64("temperature")
		}
		if cmd.Flags().Changed("max-tokens") {
			opts.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		oc := ollama.New(cfg.Ollama.BaseURL)
		conv := chat.NewConversation(cfg.Chat.SystemPrompt)
		conv.Append(ollama.RoleUser, message)

		wrote := false
		for ev := range oc.StreamChat(ctx, model, conv.Messages(), opts) {
			if ev.Err != nil {
				if wrote {
					fmt.Println()
				}
				return ev.Err
			}
			fmt.Print(ev.Delta)
			wrote = true
		}
		if wrote {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().StringP("model", "m", "", "model to chat with (default from config)")
	chatCmd.Flags().Float64("temperature", 0, "sampling temperature")
	chatCmd.Flags().Int("max-tokens", 0, "cap on generated tokens (0 = no cap)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Ollama: ollama.New(cfg.Ollama.BaseURL),
			Defaults: api.ChatDefaults{
				Model:       cfg.Chat.DefaultModel,
				Temperature: cfg.Chat.Temperature,
				MaxTokens:   cfg.Chat.MaxTokens,
			},
		})

		stdioSrv := server.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Ollama   ModelServer
	Defaults ChatDefaults
}

// NewMCPServer creates an MCP server exposing the model-server operations
// as tools: catalog listing, model pulls, and one-shot chat.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"my-local-ai",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("my-local-ai: chat with and manage models on a local Ollama server."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List the model names currently available on the local Ollama server."),
		),
		mcpListModels(deps),
	)

	s.AddTool(
		mcp.NewTool("pull_model",
			mcp.WithDescription("Download a model onto the local Ollama server so it becomes available for chat."),
			mcp.WithString("name", mcp.Description("Model name, e.g. llama3.1:8b"), mcp.Required()),
		),
		mcpPullModel(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a conversation to a local model and return the complete response."),
			mcp.WithString("messages", mcp.Description("JSON array of {role, content} message objects"), mcp.Required()),
			mcp.WithString("model", mcp.Description("Model name (defaults to the configured model)")),
			mcp.WithNumber("temperature", mcp.Description("Sampling temperature (defaults to the configured value)")),
		),
		mcpChat(deps),
	)

	return s
}

func mcpListModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := deps.Ollama.ListModels(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing models: %v", err)), nil
		}

		b, err := json.Marshal(models)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal model list: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPullModel(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}

		// Drain the progress stream; success is decided by the catalog
		// afterwards, not by anything inside the stream.
		last := ""
		for line := range deps.Ollama.StreamPull(ctx, name) {
			last = line
		}
		if last == "" {
			last = "<no output>"
		}

		if !deps.Ollama.HasModel(ctx, name) {
			return mcpError(fmt.Sprintf("pull finished but %s not found in the catalog. Last output: %s", name, last)), nil
		}
		return mcpText(fmt.Sprintf("Model %s pulled successfully", name)), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		messagesJSON, err := req.RequireString("messages")
		if err != nil {
			return mcpError("messages is required"), nil
		}

		var messages []ollama.Message
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
			return mcpError(fmt.Sprintf("invalid messages JSON: %v", err)), nil
		}
		if len(messages) == 0 {
			return mcpError("messages must not be empty"), nil
		}

		model := req.GetString("model", deps.Defaults.Model)
		opts := ollama.ChatOptions{
			Temperature: req.GetFloat("temperature", deps.Defaults.Temperature),
			MaxTokens:   deps.Defaults.MaxTokens,
		}

		var full strings.Builder
		for ev := range deps.Ollama.StreamChat(ctx, model, messages, opts) {
			if ev.Err != nil {
				return mcpError(ev.Err.Error()), nil
			}
			full.WriteString(ev.Delta)
		}
		return mcpText(full.String()), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

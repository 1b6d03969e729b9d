// Package api is the HTTP surface backing the browser chat UI: health and
// catalog queries, session management, and the streaming chat/pull relays.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jwhoakley/my-local-ai/internal/chat"
	"github.com/jwhoakley/my-local-ai/internal/extract"
	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxAttachBodySize = 10 << 20  // 10MB

// ModelServer is the subset of the Ollama client the handlers consume.
type ModelServer interface {
	IsRunning(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	HasModel(ctx context.Context, name string) bool
	StreamChat(ctx context.Context, model string, messages []ollama.Message, opts ollama.ChatOptions) <-chan ollama.ChatEvent
	StreamPull(ctx context.Context, name string) <-chan string
	BaseURL() string
}

// ChatDefaults are the sampling defaults applied when a request leaves a
// field unset.
type ChatDefaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Deps struct {
	Ollama   ModelServer
	Sessions *chat.Store
	Defaults ChatDefaults
	Logger   *slog.Logger
}

// NewHandler returns the full HTTP handler: the embedded browser page at /
// and the JSON/SSE API under /api.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/", handleIndex)
	r.Get("/api/health", handleHealth(deps))
	r.Get("/api/models", handleModels(deps))
	r.Post("/api/sessions", handleCreateSession(deps))
	r.Get("/api/sessions/{id}", handleSessionHistory(deps))
	r.Post("/api/sessions/{id}/clear", handleClearSession(deps))
	r.Post("/api/chat", handleChat(deps))
	r.Post("/api/pull", handlePull(deps))
	r.Post("/api/attach", handleAttach(deps))

	return r
}

// handleHealth re-probes the model server on every call. It answers 200
// either way: the UI renders the raw error text, an HTTP failure would hide
// it.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		models, err := deps.Ollama.ListModels(r.Context())
		if err != nil {
			json.NewEncoder(w).Encode(map[string]any{
				"status": "error",
				"error":  err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"models": models,
		})
	}
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := deps.Ollama.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"models": models})
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Sessions.Create()
		deps.Logger.Debug("session created", "id", s.ID)

		conv, unlock := s.Lock()
		system := conv.Messages()[0].Content
		unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": s.ID, "system": system})
	}
}

func handleSessionHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "%v", err)
			return
		}

		conv, unlock := s.Lock()
		history := conv.History()
		unlock()

		if history == nil {
			history = []ollama.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"messages": history})
	}
}

func handleClearSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "%v", err)
			return
		}

		conv, unlock := s.Lock()
		conv.Clear()
		unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"cleared": true})
	}
}

// handleAttach extracts the plain text of an uploaded PDF so the UI can
// inline it into the next prompt.
func handleAttach(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAttachBodySize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file upload: %v", err)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		text, err := extract.PDF(data)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"name": header.Filename,
			"text": text,
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

// ChatRequest is the browser's chat submission. Temperature and MaxTokens
// are pointers so an absent field falls back to the configured defaults
// while an explicit zero is honored.
type ChatRequest struct {
	SessionID   string   `json:"session_id"`
	Model       string   `json:"model"`
	Message     string   `json:"message"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// PullRequest names the model to download.
type PullRequest struct {
	Name string `json:"name"`
}

// handleChat appends the user message, drives one streaming chat against
// the model server, and relays each delta to the browser as an SSE event.
// The assistant turn lands in the conversation log only if at least one
// delta arrived; a zero-content failure leaves the log without one, while
// partial output that preceded an error is kept.
func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		s, err := deps.Sessions.Get(req.SessionID)
		if err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "%v", err)
			return
		}

		model := req.Model
		if model == "" {
			model = deps.Defaults.Model
		}
		opts := ollama.ChatOptions{
			Temperature: deps.Defaults.Temperature,
			MaxTokens:   deps.Defaults.MaxTokens,
		}
		if req.Temperature != nil {
			opts.Temperature = *req.Temperature
		}
		if req.MaxTokens != nil {
			opts.MaxTokens = *req.MaxTokens
		}

		sse, ok := newSSEWriter(w)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		// The session lock serializes this stream with history reads and
		// clears; one chat is in flight per session at a time.
		conv, unlock := s.Lock()
		defer unlock()

		conv.Append(ollama.RoleUser, req.Message)

		var full strings.Builder
		failed := false
		for ev := range deps.Ollama.StreamChat(r.Context(), model, conv.Messages(), opts) {
			if ev.Err != nil {
				deps.Logger.Error("chat stream failed", "session", s.ID, "model", model, "error", ev.Err)
				sse.event(map[string]string{"error": ev.Err.Error()})
				failed = true
				break
			}
			full.WriteString(ev.Delta)
			sse.event(map[string]string{"delta": ev.Delta})
		}

		if strings.TrimSpace(full.String()) != "" {
			conv.Append(ollama.RoleAssistant, full.String())
		}
		if !failed {
			sse.event(map[string]bool{"done": true})
		}
	}
}

// handlePull relays raw pull progress lines to the browser, then decides
// success by re-querying the catalog: the stream itself has no trustworthy
// terminal marker.
func handlePull(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req PullRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		sse, ok := newSSEWriter(w)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		last := ""
		for line := range deps.Ollama.StreamPull(r.Context(), name) {
			last = line
			sse.event(map[string]string{"line": line})
		}

		if last == "" {
			last = "<no output>"
		}
		success := deps.Ollama.HasModel(r.Context(), name)
		deps.Logger.Info("pull finished", "model", name, "success", success)
		sse.event(map[string]any{
			"done":    true,
			"success": success,
			"last":    last,
		})
	}
}

// sseWriter emits server-sent events, flushing after each one so the
// browser renders deltas as they arrive.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.w.Write([]byte("data: "))
	s.w.Write(b)
	s.w.Write([]byte("\n\n"))
	s.flusher.Flush()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jwhoakley/my-local-ai/internal/chat"
	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

type fakeModelServer struct {
	models     []string
	listErr    error
	chatEvents []ollama.ChatEvent
	pullLines  []string
	hasModel   bool

	mu       sync.Mutex
	gotModel string
	gotOpts  ollama.ChatOptions
	gotMsgs  []ollama.Message
	gotPull  string
}

func (f *fakeModelServer) IsRunning(ctx context.Context) bool { return f.listErr == nil }

func (f *fakeModelServer) ListModels(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeModelServer) HasModel(ctx context.Context, name string) bool { return f.hasModel }

func (f *fakeModelServer) BaseURL() string { return "http://fake:11434" }

func (f *fakeModelServer) StreamChat(ctx context.Context, model string, messages []ollama.Message, opts ollama.ChatOptions) <-chan ollama.ChatEvent {
	f.mu.Lock()
	f.gotModel = model
	f.gotOpts = opts
	f.gotMsgs = append([]ollama.Message(nil), messages...)
	f.mu.Unlock()

	ch := make(chan ollama.ChatEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.chatEvents {
			ch <- ev
		}
	}()
	return ch
}

func (f *fakeModelServer) StreamPull(ctx context.Context, name string) <-chan string {
	f.mu.Lock()
	f.gotPull = name
	f.mu.Unlock()

	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, line := range f.pullLines {
			ch <- line
		}
	}()
	return ch
}

func newTestHandler(fake *fakeModelServer) (http.Handler, *chat.Store) {
	store := chat.NewStore("")
	h := NewHandler(Deps{
		Ollama:   fake,
		Sessions: store,
		Defaults: ChatDefaults{Model: "llama3.1:8b", Temperature: 0.7},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// parseSSE decodes every "data: {...}" payload in an event-stream body.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line[len("data: "):]), &ev); err != nil {
			t.Fatalf("bad event payload %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealth_OK(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{models: []string{"llama3.1:8b"}})

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string   `json:"status"`
		Models []string `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if len(resp.Models) != 1 || resp.Models[0] != "llama3.1:8b" {
		t.Errorf("unexpected models: %v", resp.Models)
	}
}

func TestHealth_Down(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{listErr: errors.New("connection refused")})

	rec := doJSON(t, h, http.MethodGet, "/api/health", nil)
	// Still 200: the status lives in the payload so the UI can show it.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("expected status error, got %q", resp.Status)
	}
	if !strings.Contains(resp.Error, "connection refused") {
		t.Errorf("expected cause in error, got %q", resp.Error)
	}
}

func TestModels_UpstreamFailure(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{listErr: errors.New("boom")})

	rec := doJSON(t, h, http.MethodGet, "/api/models", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	rec := doJSON(t, h, http.MethodPost, "/api/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d", rec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a session id")
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	var hist struct {
		Messages []ollama.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Messages) != 0 {
		t.Errorf("expected empty history, got %v", hist.Messages)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/sessions/"+created.ID+"/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/sessions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", rec.Code)
	}
}

func TestChat_StreamsDeltas(t *testing.T) {
	fake := &fakeModelServer{
		chatEvents: []ollama.ChatEvent{{Delta: "Hello"}, {Delta: ", world"}},
	}
	h, store := newTestHandler(fake)
	s := store.Create()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{
		SessionID: s.ID,
		Model:     "custom:7b",
		Message:   "hi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	if events[0]["delta"] != "Hello" || events[1]["delta"] != ", world" {
		t.Errorf("unexpected deltas: %v", events)
	}
	if events[2]["done"] != true {
		t.Errorf("expected terminal done event, got %v", events[2])
	}

	if fake.gotModel != "custom:7b" {
		t.Errorf("expected requested model, got %q", fake.gotModel)
	}
	// System preamble plus the user turn go upstream.
	if len(fake.gotMsgs) != 2 || fake.gotMsgs[0].Role != ollama.RoleSystem || fake.gotMsgs[1].Content != "hi" {
		t.Errorf("unexpected upstream messages: %v", fake.gotMsgs)
	}

	conv, unlock := s.Lock()
	history := conv.History()
	unlock()
	if len(history) != 2 {
		t.Fatalf("expected user+assistant in history, got %v", history)
	}
	if history[1].Role != ollama.RoleAssistant || history[1].Content != "Hello, world" {
		t.Errorf("unexpected assistant turn: %v", history[1])
	}
}

func TestChat_DefaultsApplied(t *testing.T) {
	fake := &fakeModelServer{chatEvents: []ollama.ChatEvent{{Delta: "ok"}}}
	h, store := newTestHandler(fake)
	s := store.Create()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{
		SessionID: s.ID,
		Message:   "hi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fake.gotModel != "llama3.1:8b" {
		t.Errorf("expected default model, got %q", fake.gotModel)
	}
	if fake.gotOpts.Temperature != 0.7 {
		t.Errorf("expected default temperature, got %v", fake.gotOpts.Temperature)
	}
}

func TestChat_ExplicitZeroTemperature(t *testing.T) {
	fake := &fakeModelServer{chatEvents: []ollama.ChatEvent{{Delta: "ok"}}}
	h, store := newTestHandler(fake)
	s := store.Create()

	zero := 0.0
	doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{
		SessionID:   s.ID,
		Message:     "hi",
		Temperature: &zero,
	})
	if fake.gotOpts.Temperature != 0 {
		t.Errorf("explicit zero should override the default, got %v", fake.gotOpts.Temperature)
	}
}

func TestChat_ErrorKeepsPartialOutput(t *testing.T) {
	fake := &fakeModelServer{
		chatEvents: []ollama.ChatEvent{
			{Delta: "partial"},
			{Err: &ollama.UpstreamError{Message: "model crashed"}},
		},
	}
	h, store := newTestHandler(fake)
	s := store.Create()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{SessionID: s.ID, Message: "hi"})
	events := parseSSE(t, rec.Body.String())
	last := events[len(events)-1]
	if last["error"] != "model crashed" {
		t.Errorf("expected error event last, got %v", last)
	}
	for _, ev := range events {
		if ev["done"] == true {
			t.Error("failed stream must not emit done")
		}
	}

	conv, unlock := s.Lock()
	history := conv.History()
	unlock()
	if len(history) != 2 || history[1].Content != "partial" {
		t.Errorf("partial output before the error should be kept: %v", history)
	}
}

func TestChat_ErrorWithoutContent(t *testing.T) {
	fake := &fakeModelServer{
		chatEvents: []ollama.ChatEvent{{Err: errors.New("failed to reach Ollama")}},
	}
	h, store := newTestHandler(fake)
	s := store.Create()

	doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{SessionID: s.ID, Message: "hi"})

	conv, unlock := s.Lock()
	history := conv.History()
	unlock()
	if len(history) != 1 {
		t.Errorf("no assistant turn should be logged without content, got %v", history)
	}
	if history[0].Role != ollama.RoleUser {
		t.Errorf("user turn should survive the failure, got %v", history[0])
	}
}

func TestChat_UnknownSession(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	rec := doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{SessionID: "nope", Message: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	h, store := newTestHandler(&fakeModelServer{})
	s := store.Create()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", ChatRequest{SessionID: s.ID, Message: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPull_Success(t *testing.T) {
	fake := &fakeModelServer{
		pullLines: []string{`{"status":"pulling manifest"}`, `{"status":"success"}`},
		hasModel:  true,
	}
	h, _ := newTestHandler(fake)

	rec := doJSON(t, h, http.MethodPost, "/api/pull", PullRequest{Name: "mistral:7b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	final := events[len(events)-1]
	if final["done"] != true || final["success"] != true {
		t.Errorf("expected successful terminal event, got %v", final)
	}
	if final["last"] != `{"status":"success"}` {
		t.Errorf("expected last progress line in terminal event, got %v", final["last"])
	}
	if fake.gotPull != "mistral:7b" {
		t.Errorf("expected pull of mistral:7b, got %q", fake.gotPull)
	}
}

func TestPull_FailureWithoutOutput(t *testing.T) {
	fake := &fakeModelServer{hasModel: false}
	h, _ := newTestHandler(fake)

	rec := doJSON(t, h, http.MethodPost, "/api/pull", PullRequest{Name: "missing:1b"})
	events := parseSSE(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected only the terminal event, got %v", events)
	}
	final := events[0]
	if final["success"] != false {
		t.Errorf("model absent from the catalog means failure, got %v", final)
	}
	if final["last"] != "<no output>" {
		t.Errorf("expected <no output> placeholder, got %v", final["last"])
	}
}

func TestPull_EmptyName(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	rec := doJSON(t, h, http.MethodPost, "/api/pull", PullRequest{Name: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAttach_RejectsNonPDF(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte("this is not a pdf"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/attach", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAttach_MissingFile(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	req := httptest.NewRequest(http.MethodPost, "/api/attach", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIndex_ServesPage(t *testing.T) {
	h, _ := newTestHandler(&fakeModelServer{})

	rec := doJSON(t, h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "chat-history") {
		t.Error("expected the chat page markup")
	}
}

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// maxLineSize bounds a single streamed response line.
const maxLineSize = 1 << 20

// UpstreamError is an error the model server reported inside the response
// stream, as opposed to a failure reaching the server at all. The message is
// surfaced verbatim.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// ChatEvent is one element of a streaming chat response. A terminal failure
// is delivered as the final event with Err set; a normally finished stream
// simply closes the channel after the last delta.
type ChatEvent struct {
	Delta string
	Err   error
}

// ChatOptions are the sampling options forwarded to the model. Temperature
// is passed through uninterpreted. MaxTokens <= 0 leaves the output length
// unconstrained: num_predict is omitted from the wire body, not sent as zero.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// pullRequest is the JSON body for POST /api/pull.
type pullRequest struct {
	Name string `json:"name"`
}

// StreamChat sends the full conversation to the model and returns a channel
// of incremental response deltas. The channel is finite and single-pass: it
// is closed when the server signals completion, when the upstream reports an
// error (delivered as a final event with Err set), or when ctx is done.
// Retrying means calling StreamChat again, which re-sends the conversation.
func (c *Client) StreamChat(ctx context.Context, model string, messages []Message, opts ChatOptions) <-chan ChatEvent {
	ch := make(chan ChatEvent)

	go func() {
		defer close(ch)

		emit := func(ev ChatEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		co := chatOptions{Temperature: opts.Temperature}
		if opts.MaxTokens > 0 {
			co.NumPredict = opts.MaxTokens
		}
		body, err := json.Marshal(chatRequest{
			Model:    model,
			Messages: messages,
			Stream:   true,
			Options:  co,
		})
		if err != nil {
			emit(ChatEvent{Err: fmt.Errorf("marshalling chat request: %w", err)})
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			emit(ChatEvent{Err: fmt.Errorf("creating chat request: %w", err)})
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			emit(ChatEvent{Err: fmt.Errorf("failed to reach Ollama at %s: %w", c.baseURL, err)})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			emit(ChatEvent{Err: fmt.Errorf("failed to reach Ollama at %s: unexpected status %d", c.baseURL, resp.StatusCode)})
			return
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			frag, ok := decodeFragment(line)
			if !ok {
				continue
			}
			if frag.errMsg != "" {
				emit(ChatEvent{Err: &UpstreamError{Message: frag.errMsg}})
				return
			}
			if frag.content != "" {
				if !emit(ChatEvent{Delta: frag.content}) {
					return
				}
			}
			// A content-bearing line may also be the terminal one; the
			// delta above is delivered before the stream ends.
			if frag.done {
				return
			}
		}
		if err := sc.Err(); err != nil {
			emit(ChatEvent{Err: fmt.Errorf("reading chat stream from %s: %w", c.baseURL, err)})
		}
	}()

	return ch
}

// StreamPull downloads a model and returns a channel of raw progress lines,
// passed through undecoded. Failures are reported in-band: on any transport
// problem the channel yields exactly one "ERROR: <cause>" item and then
// closes normally. The stream itself carries no trustworthy success signal;
// callers decide success by re-querying the catalog (HasModel) afterwards.
func (c *Client) StreamPull(ctx context.Context, name string) <-chan string {
	ch := make(chan string)

	go func() {
		defer close(ch)

		emit := func(line string) bool {
			select {
			case ch <- line:
				return true
			case <-ctx.Done():
				return false
			}
		}

		body, err := json.Marshal(pullRequest{Name: name})
		if err != nil {
			emit("ERROR: " + err.Error())
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
		if err != nil {
			emit("ERROR: " + err.Error())
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			emit("ERROR: " + err.Error())
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			emit(fmt.Sprintf("ERROR: pull %s: unexpected status %d", name, resp.StatusCode))
			return
		}

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if !emit(string(line)) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			emit("ERROR: " + err.Error())
		}
	}()

	return ch
}

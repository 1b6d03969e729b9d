package ollama

import "encoding/json"

// fragment is one decoded unit of a streamed response line. A single line
// may be both content-bearing and terminal; an explicit error message takes
// priority over both.
type fragment struct {
	content string
	done    bool
	errMsg  string
}

// streamLine mirrors one NDJSON line of a streamed /api/chat response:
// {"message":{"content":...},"done":...} or {"error":...}.
type streamLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// decodeFragment parses a single streamed line. ok is false when the line is
// not well-formed JSON; such lines are dropped silently, since the server may
// interleave non-JSON keep-alive noise with the payload. Blank lines are the
// caller's job to skip before decoding.
func decodeFragment(line []byte) (fragment, bool) {
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return fragment{}, false
	}
	return fragment{
		content: sl.Message.Content,
		done:    sl.Done,
		errMsg:  sl.Error,
	}, true
}

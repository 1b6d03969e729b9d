// Package chat holds the conversation log and the in-memory session store
// backing the browser UI.
package chat

import (
	"github.com/jwhoakley/my-local-ai/internal/ollama"
)

// DefaultSystemPrompt is the preamble seeded into every new conversation.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// Conversation is an ordered, append-only sequence of role-tagged messages.
// After creation or a Clear it contains exactly one system message at index
// 0; that message stays in every payload sent to the model but is skipped
// when rendering history.
type Conversation struct {
	msgs []ollama.Message
}

// NewConversation creates a conversation holding only the system preamble.
// An empty system string falls back to DefaultSystemPrompt.
func NewConversation(system string) *Conversation {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &Conversation{
		msgs: []ollama.Message{{Role: ollama.RoleSystem, Content: system}},
	}
}

// Append adds a message to the end of the log. Roles are not validated;
// insertion order is the semantic order.
func (c *Conversation) Append(role, content string) {
	c.msgs = append(c.msgs, ollama.Message{Role: role, Content: content})
}

// Clear resets the log to its initial one-element state, keeping the same
// system preamble.
func (c *Conversation) Clear() {
	system := c.msgs[0]
	c.msgs = []ollama.Message{system}
}

// Messages returns a copy of the full log, system preamble included. This
// is what goes to the model so it retains its instruction context.
func (c *Conversation) Messages() []ollama.Message {
	out := make([]ollama.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// History returns a copy of the log without system messages, for display.
func (c *Conversation) History() []ollama.Message {
	var out []ollama.Message
	for _, m := range c.msgs {
		if m.Role == ollama.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Len reports the number of messages in the log, system preamble included.
func (c *Conversation) Len() int {
	return len(c.msgs)
}

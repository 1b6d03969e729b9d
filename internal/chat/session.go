package chat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session is one browser tab's conversation state. The mutex serializes the
// single in-flight stream a session may have with concurrent history reads
// and clears.
type Session struct {
	ID string

	mu   sync.Mutex
	conv *Conversation
}

// Lock takes exclusive ownership of the session's conversation and returns
// it together with an unlock func.
func (s *Session) Lock() (*Conversation, func()) {
	s.mu.Lock()
	return s.conv, s.mu.Unlock
}

// Store is the in-memory session registry. Sessions live only as long as
// the process; there is no persistence across restarts.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	system   string
}

// NewStore creates an empty session store. New sessions are seeded with the
// given system preamble (empty string means DefaultSystemPrompt).
func NewStore(system string) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		system:   system,
	}
}

// Create registers a new session and returns it.
func (st *Store) Create() *Session {
	s := &Session{
		ID:   uuid.New().String(),
		conv: NewConversation(st.system),
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	return s
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return s, nil
}

// Package session tracks live voice sessions and their in-memory history.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/backtalk/backend/internal/model/chat"
)

// Session is one live connection's state. History holds the working copy of
// the conversation so prompt assembly does not hit storage every turn.
type Session struct {
	ID             string
	UserID         string
	ConversationID string
	VideoID        string

	mu      sync.Mutex
	history []chat.Message
}

// New creates a session seeded with the conversation's stored history.
func New(userID, conversationID, videoID string, history []chat.Message) *Session {
	return &Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: conversationID,
		VideoID:        videoID,
		history:        history,
	}
}

// History returns a snapshot of the session history in chronological order.
func (s *Session) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds a message to the end of the session history.
func (s *Session) Append(msg chat.Message) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()
}

// Registry indexes active sessions by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get looks up a session by ID.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return s, nil
}

// Remove drops a session. Safe to call for unknown IDs.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Count reports the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

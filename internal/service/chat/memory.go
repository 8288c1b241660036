package chat

import (
	"context"
	"sync"

	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
)

// MemoryStore keeps conversations in process memory. Suitable for tests and
// local development; contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]chat.Message)}
}

// Append appends a message to the session history.
func (s *MemoryStore) Append(_ context.Context, sessionID string, role chat.Role, text string) (chat.Message, error) {
	message, err := newMessage(sessionID, role, text)
	if err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], message)
	s.mu.Unlock()

	return message, nil
}

// History returns a copy of the most recent messages of the session.
func (s *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}

	copied := make([]chat.Message, len(messages)-start)
	copy(copied, messages[start:])
	return copied, nil
}

// Clear drops the session's messages.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}

	s.mu.Lock()
	delete(s.messages, sessionID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

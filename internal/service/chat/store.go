package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
)

var (
	ErrSessionRequired = errors.New("session id is required")
	ErrInvalidRole     = errors.New("role must be user or assistant")
)

// Store persists conversation turns per session.
type Store interface {
	// Append records a message at the end of the session.
	Append(ctx context.Context, sessionID string, role chat.Role, text string) (chat.Message, error)
	// History returns the most recent limit messages, oldest first.
	// A limit <= 0 returns the whole session.
	History(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	// Clear deletes every message of the session.
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// Open selects a Store implementation from the URL scheme.
func Open(ctx context.Context, url, database string) (Store, error) {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return NewMongoStore(ctx, url, database)
	case url == "memory" || url == "memory://":
		return NewMemoryStore(), nil
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLiteStore(strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "sqlite:"):
		return NewSQLiteStore(strings.TrimPrefix(url, "sqlite:"))
	case url == ":memory:", strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		return NewSQLiteStore(url)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL %q", url)
	}
}

// newMessage validates input and stamps identity and time.
func newMessage(sessionID string, role chat.Role, text string) (chat.Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return chat.Message{}, ErrSessionRequired
	}
	if !role.Valid() {
		return chat.Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func reverse(messages []chat.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/mindsift/mindsift/internal/model"
)

// Repository defines operations for chat session and message persistence
type Repository interface {
	// CreateSession creates a new chat session record
	CreateSession(ctx context.Context, session *model.ChatSession) error

	// GetSession retrieves a session by its ID
	GetSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)

	// AppendMessage appends a message to a session
	AppendMessage(ctx context.Context, message *model.ChatMessage) error

	// ListMessages lists a session's messages in chronological order
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*model.ChatMessage, error)
}

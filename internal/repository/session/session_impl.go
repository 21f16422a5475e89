package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	apperrors "github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool interface for abstracting pgx connection pool
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sessionRepository implements Repository using PostgreSQL
type sessionRepository struct {
	pool Pool
}

// NewRepository creates a new instance of Repository
func NewRepository(pool Pool) Repository {
	return &sessionRepository{
		pool: pool,
	}
}

// CreateSession creates a new chat session record
func (r *sessionRepository) CreateSession(ctx context.Context, session *model.ChatSession) error {
	sql := "INSERT INTO chat_sessions (id, scope, video_id, channel_id) VALUES ($1, $2, $3, $4)"
	_, err := r.pool.Exec(ctx, sql, session.ID, session.Scope, session.VideoID, session.ChannelID)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to create chat session")
	}
	return nil
}

// GetSession retrieves a session by its ID
func (r *sessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.ChatSession, error) {
	sql := "SELECT id, scope, video_id, channel_id, created_at FROM chat_sessions WHERE id = $1"
	row := r.pool.QueryRow(ctx, sql, id)

	var session model.ChatSession
	err := row.Scan(&session.ID, &session.Scope, &session.VideoID, &session.ChannelID, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "chat session not found")
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get chat session")
	}

	return &session, nil
}

// AppendMessage appends a message to a session. Citations are stored as JSONB.
func (r *sessionRepository) AppendMessage(ctx context.Context, message *model.ChatMessage) error {
	citations, err := json.Marshal(message.Citations)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode citations")
	}

	sql := "INSERT INTO chat_messages (id, session_id, role, content, citations) VALUES ($1, $2, $3, $4, $5)"
	_, err = r.pool.Exec(ctx, sql, message.ID, message.SessionID, message.Role, message.Content, citations)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to append chat message")
	}
	return nil
}

// ListMessages lists a session's messages in chronological order
func (r *sessionRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*model.ChatMessage, error) {
	sql := `SELECT id, session_id, role, content, citations, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, sql, sessionID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to list chat messages")
	}
	defer rows.Close()

	messages := []*model.ChatMessage{}
	for rows.Next() {
		var msg model.ChatMessage
		var citations []byte
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &citations, &msg.CreatedAt)
		if err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan chat message row")
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decode citations")
			}
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to iterate chat message rows")
	}

	return messages, nil
}

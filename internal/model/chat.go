package model

import (
	"time"

	"github.com/google/uuid"
)

// Chat session scope constants
const (
	ScopeVideo   = "video"
	ScopeChannel = "channel"
)

// ChatSession groups the messages of one conversation over a video or a
// whole channel
type ChatSession struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Scope     string    `json:"scope" db:"scope"` // "video" or "channel"
	VideoID   *string   `json:"video_id" db:"video_id"`
	ChannelID *string   `json:"channel_id" db:"channel_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChatMessage is a single message within a session
type ChatMessage struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	SessionID uuid.UUID  `json:"session_id" db:"session_id"`
	Role      string     `json:"role" db:"role"` // "user" or "assistant"
	Content   string     `json:"content" db:"content"`
	Citations []Citation `json:"citations" db:"citations"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Citation is a timestamp reference extracted from an assistant reply,
// resolved back to the chunk whose time range contains it. Text is empty
// when no chunk matched.
type Citation struct {
	Timestamp string  `json:"timestamp"` // as written in the reply, e.g. "02:15"
	Seconds   float64 `json:"seconds"`
	VideoID   string  `json:"video_id,omitempty"`
	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
	Text      string  `json:"text,omitempty"`
}

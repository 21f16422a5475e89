package video

import (
	"context"

	"github.com/mindsift/mindsift/internal/model"
)

// Repository defines operations for Video persistence
type Repository interface {
	// Create creates a new video record; existing records are left untouched
	Create(ctx context.Context, video *model.Video) error

	// GetByID retrieves a video by its ID
	GetByID(ctx context.Context, id string) (*model.Video, error)

	// GetByChannelID retrieves videos by channel ID with pagination
	GetByChannelID(ctx context.Context, channelID string, limit, offset int) ([]*model.Video, error)

	// SetTranscriptCached updates the transcript-cached flag
	SetTranscriptCached(ctx context.Context, id string, cached bool) error

	// SetChunksProcessed updates the chunks-processed flag
	SetChunksProcessed(ctx context.Context, id string, processed bool) error

	// List retrieves videos with pagination
	List(ctx context.Context, limit, offset int) ([]*model.Video, error)
}

package chunk

import (
	"context"

	"github.com/mindsift/mindsift/internal/model"
	"github.com/pgvector/pgvector-go"
)

// Repository defines operations for TranscriptChunk persistence and
// similarity search.
type Repository interface {
	// InsertBatch inserts chunks using bulk COPY
	InsertBatch(ctx context.Context, chunks []*model.TranscriptChunk) error

	// DeleteByVideoID deletes all chunks belonging to a video
	DeleteByVideoID(ctx context.Context, videoID string) error

	// ReplaceForVideo atomically deletes a video's chunks and inserts the
	// new set, so reprocessing never leaves stale or duplicate rows
	ReplaceForVideo(ctx context.Context, videoID string, chunks []*model.TranscriptChunk) error

	// GetByVideoID retrieves all chunks for a video ordered by chunk index
	GetByVideoID(ctx context.Context, videoID string) ([]*model.TranscriptChunk, error)

	// CountByVideoID counts the chunks stored for a video
	CountByVideoID(ctx context.Context, videoID string) (int, error)

	// UpdateEmbedding backfills the embedding of a single chunk
	UpdateEmbedding(ctx context.Context, id int64, embedding pgvector.Vector) error

	// ListMissingEmbeddings returns chunks whose embedding is still null
	ListMissingEmbeddings(ctx context.Context, videoID string, limit int) ([]*model.TranscriptChunk, error)

	// SimilaritySearch returns the topK chunks within the given videos,
	// ordered by cosine similarity to the query embedding. Each result
	// carries the owning video's title and the raw similarity.
	SimilaritySearch(ctx context.Context, embedding pgvector.Vector, videoIDs []string, topK int) ([]*model.ScoredChunk, error)
}

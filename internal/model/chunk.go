package model

import "github.com/pgvector/pgvector-go"

// TranscriptChunk is the persisted unit of retrieval: a contiguous span of
// transcript text with its time range, derived keywords and embedding.
//
// Chunk indices are dense and zero-based per video; time ranges never go
// backward. Chunks are immutable after ingestion except for a lazily
// backfilled embedding, and are deleted and regenerated wholesale when a
// video is reprocessed.
type TranscriptChunk struct {
	ID         int64            `json:"id" db:"id"`
	VideoID    string           `json:"video_id" db:"video_id"`
	ChunkIndex int              `json:"chunk_index" db:"chunk_index"`
	StartTime  float64          `json:"start_time" db:"start_time"` // seconds
	EndTime    float64          `json:"end_time" db:"end_time"`     // seconds
	Text       string           `json:"text" db:"text"`
	Keywords   []string         `json:"keywords" db:"keywords"`
	Embedding  *pgvector.Vector `json:"-" db:"embedding"` // nil until embedded
}

// ScoredChunk is a chunk annotated with retrieval scores and the owning
// video's title, as produced by similarity search and re-ranking.
type ScoredChunk struct {
	TranscriptChunk
	VideoTitle string  `json:"video_title"`
	Similarity float64 `json:"similarity"` // raw vector similarity
	Score      float64 `json:"score"`      // blended score after re-ranking
}

package chunk

import (
	"context"

	apperrors "github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Pool interface for abstracting pgx connection pool
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// chunkRepository implements Repository using PostgreSQL with pgvector
type chunkRepository struct {
	pool Pool
}

// NewRepository creates a new instance of Repository
func NewRepository(pool Pool) Repository {
	return &chunkRepository{
		pool: pool,
	}
}

var chunkColumnNames = []string{"video_id", "chunk_index", "start_time", "end_time", "text", "keywords", "embedding"}

func chunkCopyRows(chunks []*model.TranscriptChunk) [][]any {
	rows := make([][]any, len(chunks))
	for i, c := range chunks {
		var embedding any
		if c.Embedding != nil {
			embedding = *c.Embedding
		}
		rows[i] = []any{c.VideoID, c.ChunkIndex, c.StartTime, c.EndTime, c.Text, c.Keywords, embedding}
	}
	return rows
}

// InsertBatch inserts chunks using COPY FROM for bulk performance
func (r *chunkRepository) InsertBatch(ctx context.Context, chunks []*model.TranscriptChunk) error {
	if len(chunks) == 0 {
		return nil // Nothing to insert
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"transcript_chunks"},
		chunkColumnNames,
		pgx.CopyFromRows(chunkCopyRows(chunks)),
	)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to insert transcript chunks")
	}

	return nil
}

// DeleteByVideoID deletes all chunks belonging to a video
func (r *chunkRepository) DeleteByVideoID(ctx context.Context, videoID string) error {
	sql := "DELETE FROM transcript_chunks WHERE video_id = $1"
	_, err := r.pool.Exec(ctx, sql, videoID)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to delete transcript chunks")
	}
	return nil
}

// ReplaceForVideo deletes the video's chunks and inserts the new set within
// one transaction
func (r *chunkRepository) ReplaceForVideo(ctx context.Context, videoID string, chunks []*model.TranscriptChunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM transcript_chunks WHERE video_id = $1", videoID); err != nil {
		return common.HandlePostgreSQLError(err, "failed to delete existing transcript chunks")
	}

	if len(chunks) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"transcript_chunks"},
			chunkColumnNames,
			pgx.CopyFromRows(chunkCopyRows(chunks)),
		)
		if err != nil {
			return common.HandlePostgreSQLError(err, "failed to insert transcript chunks")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return common.HandlePostgreSQLError(err, "failed to commit transcript chunk replacement")
	}

	return nil
}

// GetByVideoID retrieves all chunks for a video ordered by chunk index
func (r *chunkRepository) GetByVideoID(ctx context.Context, videoID string) ([]*model.TranscriptChunk, error) {
	sql := `SELECT id, video_id, chunk_index, start_time, end_time, text, keywords, embedding
		FROM transcript_chunks WHERE video_id = $1 ORDER BY chunk_index`
	rows, err := r.pool.Query(ctx, sql, videoID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to get transcript chunks")
	}
	defer rows.Close()

	return collectChunks(rows)
}

// CountByVideoID counts the chunks stored for a video
func (r *chunkRepository) CountByVideoID(ctx context.Context, videoID string) (int, error) {
	sql := "SELECT COUNT(*) FROM transcript_chunks WHERE video_id = $1"
	var count int
	if err := r.pool.QueryRow(ctx, sql, videoID).Scan(&count); err != nil {
		return 0, common.HandlePostgreSQLError(err, "failed to count transcript chunks")
	}
	return count, nil
}

// UpdateEmbedding backfills the embedding of a single chunk
func (r *chunkRepository) UpdateEmbedding(ctx context.Context, id int64, embedding pgvector.Vector) error {
	sql := "UPDATE transcript_chunks SET embedding = $2 WHERE id = $1"
	tag, err := r.pool.Exec(ctx, sql, id, embedding)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to update chunk embedding")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeNotFound, "transcript chunk not found")
	}
	return nil
}

// ListMissingEmbeddings returns chunks whose embedding is still null
func (r *chunkRepository) ListMissingEmbeddings(ctx context.Context, videoID string, limit int) ([]*model.TranscriptChunk, error) {
	sql := `SELECT id, video_id, chunk_index, start_time, end_time, text, keywords, embedding
		FROM transcript_chunks WHERE video_id = $1 AND embedding IS NULL ORDER BY chunk_index LIMIT $2`
	rows, err := r.pool.Query(ctx, sql, videoID, limit)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to list chunks missing embeddings")
	}
	defer rows.Close()

	return collectChunks(rows)
}

// SimilaritySearch retrieves the topK most similar chunks within the given videos.
// Similarity is cosine similarity (1 - cosine distance); chunks without an
// embedding are skipped.
func (r *chunkRepository) SimilaritySearch(ctx context.Context, embedding pgvector.Vector, videoIDs []string, topK int) ([]*model.ScoredChunk, error) {
	if len(videoIDs) == 0 {
		return []*model.ScoredChunk{}, nil
	}

	sql := `SELECT c.id, c.video_id, c.chunk_index, c.start_time, c.end_time, c.text, c.keywords,
		v.title, 1 - (c.embedding <=> $1) AS similarity
		FROM transcript_chunks c
		JOIN videos v ON v.id = c.video_id
		WHERE c.video_id = ANY($2) AND c.embedding IS NOT NULL
		ORDER BY c.embedding <=> $1
		LIMIT $3`
	rows, err := r.pool.Query(ctx, sql, embedding, videoIDs, topK)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to run similarity search")
	}
	defer rows.Close()

	results := []*model.ScoredChunk{}
	for rows.Next() {
		var sc model.ScoredChunk
		err := rows.Scan(&sc.ID, &sc.VideoID, &sc.ChunkIndex, &sc.StartTime, &sc.EndTime,
			&sc.Text, &sc.Keywords, &sc.VideoTitle, &sc.Similarity)
		if err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan similarity search row")
		}
		results = append(results, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to iterate similarity search rows")
	}

	return results, nil
}

func collectChunks(rows pgx.Rows) ([]*model.TranscriptChunk, error) {
	chunks := []*model.TranscriptChunk{}
	for rows.Next() {
		var c model.TranscriptChunk
		err := rows.Scan(&c.ID, &c.VideoID, &c.ChunkIndex, &c.StartTime, &c.EndTime,
			&c.Text, &c.Keywords, &c.Embedding)
		if err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan transcript chunk row")
		}
		chunks = append(chunks, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to iterate transcript chunk rows")
	}

	return chunks, nil
}

package video

import (
	"context"
	"errors"

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

// videoRepository implements Repository using PostgreSQL
type videoRepository struct {
	pool Pool
}

// NewRepository creates a new instance of Repository
func NewRepository(pool Pool) Repository {
	return &videoRepository{
		pool: pool,
	}
}

const videoColumns = "id, channel_id, title, url, duration, transcript_cached, chunks_processed"

// Create creates a new video record. Re-registering a known video is a no-op
// so that repeated metadata lookups stay idempotent.
func (r *videoRepository) Create(ctx context.Context, video *model.Video) error {
	sql := "INSERT INTO videos (id, channel_id, title, url, duration) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING"
	_, err := r.pool.Exec(ctx, sql, video.ID, video.ChannelID, video.Title, video.URL, video.Duration)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to create video")
	}
	return nil
}

// GetByID retrieves a video by its ID
func (r *videoRepository) GetByID(ctx context.Context, id string) (*model.Video, error) {
	sql := "SELECT " + videoColumns + " FROM videos WHERE id = $1"
	row := r.pool.QueryRow(ctx, sql, id)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "video not found")
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get video")
	}

	return video, nil
}

// GetByChannelID retrieves videos by channel ID with pagination
func (r *videoRepository) GetByChannelID(ctx context.Context, channelID string, limit, offset int) ([]*model.Video, error) {
	sql := "SELECT " + videoColumns + " FROM videos WHERE channel_id = $1 ORDER BY id LIMIT $2 OFFSET $3"
	rows, err := r.pool.Query(ctx, sql, channelID, limit, offset)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to get videos by channel ID")
	}
	defer rows.Close()

	return collectVideos(rows)
}

// SetTranscriptCached updates the transcript-cached flag
func (r *videoRepository) SetTranscriptCached(ctx context.Context, id string, cached bool) error {
	sql := "UPDATE videos SET transcript_cached = $2 WHERE id = $1"
	tag, err := r.pool.Exec(ctx, sql, id, cached)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to update transcript_cached")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeNotFound, "video not found")
	}
	return nil
}

// SetChunksProcessed updates the chunks-processed flag
func (r *videoRepository) SetChunksProcessed(ctx context.Context, id string, processed bool) error {
	sql := "UPDATE videos SET chunks_processed = $2 WHERE id = $1"
	tag, err := r.pool.Exec(ctx, sql, id, processed)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to update chunks_processed")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeNotFound, "video not found")
	}
	return nil
}

// List retrieves videos with pagination
func (r *videoRepository) List(ctx context.Context, limit, offset int) ([]*model.Video, error) {
	sql := "SELECT " + videoColumns + " FROM videos ORDER BY id LIMIT $1 OFFSET $2"
	rows, err := r.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to list videos")
	}
	defer rows.Close()

	return collectVideos(rows)
}

func scanVideo(row pgx.Row) (*model.Video, error) {
	var video model.Video
	err := row.Scan(&video.ID, &video.ChannelID, &video.Title, &video.URL, &video.Duration,
		&video.TranscriptCached, &video.ChunksProcessed)
	if err != nil {
		return nil, err
	}
	return &video, nil
}

func collectVideos(rows pgx.Rows) ([]*model.Video, error) {
	videos := []*model.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan video row")
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to iterate video rows")
	}

	return videos, nil
}

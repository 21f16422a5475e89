package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/chunk"
	"github.com/mindsift/mindsift/internal/repository/lease"
	"github.com/mindsift/mindsift/internal/repository/video"
	"github.com/mindsift/mindsift/internal/service/chunker"
	"github.com/mindsift/mindsift/internal/service/keywords"
)

// TranscriptFetcher retrieves the caption track for a video
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) ([]model.TranscriptSegment, error)
}

// Embedder turns a text into an embedding vector
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Result summarizes a completed ingestion run
type Result struct {
	VideoID        string
	ChunkCount     int
	EmbeddedCount  int
	FailedEmbeds   int
	TranscriptOnly bool
}

// Service runs the transcript ingestion pipeline for a video
type Service interface {
	// Ingest fetches, chunks, embeds and stores the transcript of a video.
	// A second call for the same video reprocesses it from scratch.
	Ingest(ctx context.Context, videoID string) (*Result, error)

	// BackfillEmbeddings embeds chunks whose embedding is still missing
	// and returns how many were filled.
	BackfillEmbeddings(ctx context.Context, videoID string, limit int) (int, error)
}

type service struct {
	fetcher   TranscriptFetcher
	embedder  Embedder
	videoRepo video.Repository
	chunkRepo chunk.Repository
	leases    lease.Manager
	cfg       config.IngestConfig
	logger    *slog.Logger

	// inFlight guards against duplicate runs inside this process when the
	// shared lease store is unreachable.
	mu       sync.Mutex
	inFlight map[string]struct{}

	retryWait time.Duration
}

// NewService creates an ingestion service
func NewService(
	fetcher TranscriptFetcher,
	embedder Embedder,
	videoRepo video.Repository,
	chunkRepo chunk.Repository,
	leases lease.Manager,
	cfg config.IngestConfig,
	logger *slog.Logger,
) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		fetcher:   fetcher,
		embedder:  embedder,
		videoRepo: videoRepo,
		chunkRepo: chunkRepo,
		leases:    leases,
		cfg:       cfg,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
		retryWait: time.Second,
	}
}

func lockKey(videoID string) string {
	return "ingest:" + videoID
}

func (s *service) Ingest(ctx context.Context, videoID string) (*Result, error) {
	if videoID == "" {
		return nil, errors.New(errors.CodeInvalidArg, "video ID is required")
	}

	if !s.markInFlight(videoID) {
		return nil, errors.New(errors.CodeBusy, fmt.Sprintf("ingestion already in progress for video %s", videoID))
	}
	defer s.clearInFlight(videoID)

	// Take the cross-process lease. If the lease store itself is down we
	// fall back to the in-process guard above rather than refusing to work.
	ttl := time.Duration(s.cfg.LockTTLSeconds) * time.Second
	acquired, err := s.leases.Acquire(ctx, lockKey(videoID), ttl)
	if err != nil {
		s.logger.Warn("lease store unavailable, relying on in-process guard",
			"video_id", videoID, "error", err)
	} else if !acquired {
		return nil, errors.New(errors.CodeBusy, fmt.Sprintf("ingestion already in progress for video %s", videoID))
	} else {
		defer func() {
			if rerr := s.leases.Release(context.WithoutCancel(ctx), lockKey(videoID)); rerr != nil {
				s.logger.Warn("failed to release ingestion lease", "video_id", videoID, "error", rerr)
			}
		}()
	}

	vid, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, vid)
	if err != nil {
		// Leave the video queryable but marked unprocessed so a retry
		// picks it up again.
		if vid.ChunksProcessed {
			if rerr := s.videoRepo.SetChunksProcessed(context.WithoutCancel(ctx), videoID, false); rerr != nil {
				s.logger.Warn("failed to reset processed flag", "video_id", videoID, "error", rerr)
			}
		}
		return nil, err
	}
	return result, nil
}

func (s *service) run(ctx context.Context, vid *model.Video) (*Result, error) {
	segments, err := s.fetchWithRetry(ctx, vid.ID)
	if err != nil {
		return nil, err
	}

	chunks := chunker.Split(segments, chunker.Options{
		TargetSize: s.cfg.ChunkTargetSize,
		HardMax:    s.cfg.ChunkHardMax,
		GapSeconds: s.cfg.ChunkGapSeconds,
	})

	if err := s.videoRepo.SetTranscriptCached(ctx, vid.ID, true); err != nil {
		return nil, err
	}

	rows := make([]*model.TranscriptChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = &model.TranscriptChunk{
			VideoID:    vid.ID,
			ChunkIndex: c.Index,
			StartTime:  c.StartTime,
			EndTime:    c.EndTime,
			Text:       c.Text,
			Keywords:   keywords.Extract(c.Text, keywords.DefaultMax),
		}
	}

	embedded, failed := s.embedAll(ctx, rows)

	if err := s.chunkRepo.ReplaceForVideo(ctx, vid.ID, rows); err != nil {
		return nil, err
	}
	if err := s.videoRepo.SetChunksProcessed(ctx, vid.ID, true); err != nil {
		return nil, err
	}

	s.logger.Info("ingestion complete",
		"video_id", vid.ID,
		"chunks", len(rows),
		"embedded", embedded,
		"failed_embeddings", failed)

	return &Result{
		VideoID:       vid.ID,
		ChunkCount:    len(rows),
		EmbeddedCount: embedded,
		FailedEmbeds:  failed,
	}, nil
}

// fetchWithRetry fetches the transcript, retrying transient failures twice
// with a fixed wait. Other failures surface immediately.
func (s *service) fetchWithRetry(ctx context.Context, videoID string) ([]model.TranscriptSegment, error) {
	const attempts = 3

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		segments, err := s.fetcher.FetchTranscript(ctx, videoID)
		if err == nil {
			return segments, nil
		}
		if !errors.HasCode(err, errors.CodeTransient) {
			return nil, err
		}
		lastErr = err
		if attempt < attempts {
			s.logger.Warn("transient caption fetch failure, retrying",
				"video_id", videoID, "attempt", attempt, "error", err)
			select {
			case <-time.After(s.retryWait):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), errors.CodeTransient, "caption fetch cancelled")
			}
		}
	}
	return nil, lastErr
}

// embedAll fills in embeddings for the given rows in fixed-size concurrent
// batches. A failed item keeps a nil embedding and does not abort the rest.
func (s *service) embedAll(ctx context.Context, rows []*model.TranscriptChunk) (embedded, failed int) {
	batchSize := s.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		var wg sync.WaitGroup
		errs := make([]error, end-start)
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				vec, err := s.embedder.EmbedText(ctx, rows[i].Text)
				if err != nil {
					errs[i-start] = err
					return
				}
				v := pgvector.NewVector(vec)
				rows[i].Embedding = &v
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				failed++
				s.logger.Warn("embedding failed, chunk stored without vector",
					"video_id", rows[start+i].VideoID,
					"chunk_index", rows[start+i].ChunkIndex,
					"error", err)
			} else {
				embedded++
			}
		}
	}
	return embedded, failed
}

func (s *service) BackfillEmbeddings(ctx context.Context, videoID string, limit int) (int, error) {
	if videoID == "" {
		return 0, errors.New(errors.CodeInvalidArg, "video ID is required")
	}
	if limit <= 0 {
		limit = 100
	}

	missing, err := s.chunkRepo.ListMissingEmbeddings(ctx, videoID, limit)
	if err != nil {
		return 0, err
	}

	embedded, failed := s.embedAll(ctx, missing)
	for _, row := range missing {
		if row.Embedding == nil {
			continue
		}
		if err := s.chunkRepo.UpdateEmbedding(ctx, row.ID, *row.Embedding); err != nil {
			return embedded, err
		}
	}

	if failed > 0 {
		s.logger.Warn("backfill left some chunks without embeddings",
			"video_id", videoID, "failed", failed)
	}
	return embedded, nil
}

func (s *service) markInFlight(videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[videoID]; busy {
		return false
	}
	s.inFlight[videoID] = struct{}{}
	return true
}

func (s *service) clearInFlight(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, videoID)
}

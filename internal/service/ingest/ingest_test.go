package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/service/chunker"
)

// fakeFetcher returns canned segments or errors per call
type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	segments []model.TranscriptSegment
}

func (f *fakeFetcher) FetchTranscript(ctx context.Context, videoID string) ([]model.TranscriptSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	return f.segments, nil
}

// fakeEmbedder embeds everything except texts listed in failFor
type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failFor[text] {
		return nil, errors.New(errors.CodeTransient, "embedding backend overloaded")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVideoRepo struct {
	mu               sync.Mutex
	videos           map[string]*model.Video
	transcriptCached map[string]bool
	chunksProcessed  map[string]bool
}

func newFakeVideoRepo(videos ...*model.Video) *fakeVideoRepo {
	r := &fakeVideoRepo{
		videos:           make(map[string]*model.Video),
		transcriptCached: make(map[string]bool),
		chunksProcessed:  make(map[string]bool),
	}
	for _, v := range videos {
		r.videos[v.ID] = v
	}
	return r
}

func (r *fakeVideoRepo) Create(ctx context.Context, v *model.Video) error { return nil }

func (r *fakeVideoRepo) GetByID(ctx context.Context, id string) (*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("video not found: %s", id))
	}
	copied := *v
	return &copied, nil
}

func (r *fakeVideoRepo) GetByChannelID(ctx context.Context, channelID string, limit, offset int) ([]*model.Video, error) {
	return nil, nil
}

func (r *fakeVideoRepo) SetTranscriptCached(ctx context.Context, id string, cached bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriptCached[id] = cached
	return nil
}

func (r *fakeVideoRepo) SetChunksProcessed(ctx context.Context, id string, processed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunksProcessed[id] = processed
	return nil
}

func (r *fakeVideoRepo) List(ctx context.Context, limit, offset int) ([]*model.Video, error) {
	return nil, nil
}

type fakeChunkRepo struct {
	mu         sync.Mutex
	stored     map[string][]*model.TranscriptChunk
	missing    []*model.TranscriptChunk
	backfilled map[int64]pgvector.Vector
	replaceErr error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{
		stored:     make(map[string][]*model.TranscriptChunk),
		backfilled: make(map[int64]pgvector.Vector),
	}
}

func (r *fakeChunkRepo) InsertBatch(ctx context.Context, chunks []*model.TranscriptChunk) error {
	return nil
}

func (r *fakeChunkRepo) DeleteByVideoID(ctx context.Context, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stored, videoID)
	return nil
}

func (r *fakeChunkRepo) ReplaceForVideo(ctx context.Context, videoID string, chunks []*model.TranscriptChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.stored[videoID] = chunks
	return nil
}

func (r *fakeChunkRepo) GetByVideoID(ctx context.Context, videoID string) ([]*model.TranscriptChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stored[videoID], nil
}

func (r *fakeChunkRepo) CountByVideoID(ctx context.Context, videoID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stored[videoID]), nil
}

func (r *fakeChunkRepo) UpdateEmbedding(ctx context.Context, id int64, embedding pgvector.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backfilled[id] = embedding
	return nil
}

func (r *fakeChunkRepo) ListMissingEmbeddings(ctx context.Context, videoID string, limit int) ([]*model.TranscriptChunk, error) {
	return r.missing, nil
}

func (r *fakeChunkRepo) SimilaritySearch(ctx context.Context, embedding pgvector.Vector, videoIDs []string, topK int) ([]*model.ScoredChunk, error) {
	return nil, nil
}

// fakeLeases is an in-memory lease manager
type fakeLeases struct {
	mu       sync.Mutex
	held     map[string]time.Time
	acquires int
	releases int
	err      error
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{held: make(map[string]time.Time)}
}

func (l *fakeLeases) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.err != nil {
		return false, l.err
	}
	if until, ok := l.held[key]; ok && time.Now().Before(until) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *fakeLeases) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	delete(l.held, key)
	return nil
}

func testSegments(n int) []model.TranscriptSegment {
	segments := make([]model.TranscriptSegment, n)
	for i := range segments {
		segments[i] = model.TranscriptSegment{
			Start:    float64(i) * 3,
			Duration: 3,
			Text:     fmt.Sprintf("sentence number %d about databases.", i),
		}
	}
	return segments
}

func testConfig() config.IngestConfig {
	return config.IngestConfig{
		LockTTLSeconds:  300,
		ChunkTargetSize: 200,
		ChunkHardMax:    400,
		ChunkGapSeconds: 0.5,
		EmbedBatchSize:  5,
		CaptionLanguage: "en",
	}
}

func newTestService(f *fakeFetcher, e *fakeEmbedder, vr *fakeVideoRepo, cr *fakeChunkRepo, l *fakeLeases) *service {
	svc := NewService(f, e, vr, cr, l, testConfig(), slog.Default()).(*service)
	svc.retryWait = time.Millisecond
	return svc
}

func TestIngest(t *testing.T) {
	t.Run("full pipeline stores embedded chunks and sets flags", func(t *testing.T) {
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ", Title: "Test"})
		cr := newFakeChunkRepo()
		leases := newFakeLeases()
		svc := newTestService(
			&fakeFetcher{segments: testSegments(30)},
			&fakeEmbedder{},
			vr, cr, leases,
		)

		result, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.NoError(t, err)
		assert.Greater(t, result.ChunkCount, 1)
		assert.Equal(t, result.ChunkCount, result.EmbeddedCount)
		assert.Equal(t, 0, result.FailedEmbeds)

		stored := cr.stored["dQw4w9WgXcQ"]
		require.Len(t, stored, result.ChunkCount)
		for i, c := range stored {
			assert.Equal(t, i, c.ChunkIndex)
			assert.NotNil(t, c.Embedding)
			assert.NotEmpty(t, c.Keywords)
		}
		assert.True(t, vr.transcriptCached["dQw4w9WgXcQ"])
		assert.True(t, vr.chunksProcessed["dQw4w9WgXcQ"])
		assert.Equal(t, 1, leases.releases)
	})

	t.Run("unknown video returns NOT_FOUND", func(t *testing.T) {
		svc := newTestService(
			&fakeFetcher{segments: testSegments(5)},
			&fakeEmbedder{},
			newFakeVideoRepo(), newFakeChunkRepo(), newFakeLeases(),
		)

		_, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	})

	t.Run("held lease returns ALREADY_IN_PROGRESS", func(t *testing.T) {
		leases := newFakeLeases()
		ok, err := leases.Acquire(context.Background(), lockKey("dQw4w9WgXcQ"), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		svc := newTestService(
			&fakeFetcher{segments: testSegments(5)},
			&fakeEmbedder{},
			newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"}), newFakeChunkRepo(), leases,
		)

		_, err = svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeBusy))
	})

	t.Run("concurrent duplicate in same process is rejected", func(t *testing.T) {
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"}, &model.Video{ID: "abcdefghijk"})
		svc := newTestService(
			&fakeFetcher{segments: testSegments(200)},
			&fakeEmbedder{},
			vr, newFakeChunkRepo(), newFakeLeases(),
		)

		const workers = 8
		var wg sync.WaitGroup
		results := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = svc.Ingest(context.Background(), "dQw4w9WgXcQ")
			}(i)
		}
		wg.Wait()

		var succeeded, busy int
		for _, err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.HasCode(err, errors.CodeBusy):
				busy++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.GreaterOrEqual(t, succeeded, 1)
		assert.Equal(t, workers, succeeded+busy)
	})

	t.Run("lease store failure falls back to in-process guard", func(t *testing.T) {
		leases := newFakeLeases()
		leases.err = errors.New(errors.CodeUnavailable, "lease store down")

		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		cr := newFakeChunkRepo()
		svc := newTestService(
			&fakeFetcher{segments: testSegments(10)},
			&fakeEmbedder{},
			vr, cr, leases,
		)

		result, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.NoError(t, err)
		assert.Greater(t, result.ChunkCount, 0)
		assert.Equal(t, 0, leases.releases)
	})

	t.Run("transient fetch errors are retried then succeed", func(t *testing.T) {
		fetcher := &fakeFetcher{
			errs: []error{
				errors.New(errors.CodeTransient, "timeout"),
				errors.New(errors.CodeTransient, "timeout"),
			},
			segments: testSegments(10),
		}
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		svc := newTestService(fetcher, &fakeEmbedder{}, vr, newFakeChunkRepo(), newFakeLeases())

		result, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.NoError(t, err)
		assert.Equal(t, 3, fetcher.calls)
		assert.Greater(t, result.ChunkCount, 0)
	})

	t.Run("persistent transient failure gives up after retries", func(t *testing.T) {
		transient := errors.New(errors.CodeTransient, "timeout")
		fetcher := &fakeFetcher{errs: []error{transient, transient, transient}}
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		svc := newTestService(fetcher, &fakeEmbedder{}, vr, newFakeChunkRepo(), newFakeLeases())

		_, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeTransient))
		assert.Equal(t, 3, fetcher.calls)
	})

	t.Run("missing captions are not retried", func(t *testing.T) {
		fetcher := &fakeFetcher{errs: []error{errors.New(errors.CodeNotFound, "no captions")}}
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		svc := newTestService(fetcher, &fakeEmbedder{}, vr, newFakeChunkRepo(), newFakeLeases())

		_, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeNotFound))
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("empty transcript completes with zero chunks", func(t *testing.T) {
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		cr := newFakeChunkRepo()
		svc := newTestService(&fakeFetcher{}, &fakeEmbedder{}, vr, cr, newFakeLeases())

		result, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.NoError(t, err)
		assert.Equal(t, 0, result.ChunkCount)
		assert.True(t, vr.chunksProcessed["dQw4w9WgXcQ"])
	})

	t.Run("embedding failures are isolated per chunk", func(t *testing.T) {
		segments := testSegments(30)
		chunksPreview := previewChunks(t, segments)
		require.Greater(t, len(chunksPreview), 2)

		embedder := &fakeEmbedder{failFor: map[string]bool{chunksPreview[1]: true}}
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		cr := newFakeChunkRepo()
		svc := newTestService(&fakeFetcher{segments: segments}, embedder, vr, cr, newFakeLeases())

		result, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.NoError(t, err)
		assert.Equal(t, 1, result.FailedEmbeds)
		assert.Equal(t, result.ChunkCount-1, result.EmbeddedCount)

		stored := cr.stored["dQw4w9WgXcQ"]
		require.Len(t, stored, result.ChunkCount)
		assert.Nil(t, stored[1].Embedding)
		assert.NotNil(t, stored[0].Embedding)
	})

	t.Run("reprocessing a video runs the pipeline again", func(t *testing.T) {
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ"})
		cr := newFakeChunkRepo()
		leases := newFakeLeases()
		svc := newTestService(&fakeFetcher{segments: testSegments(20)}, &fakeEmbedder{}, vr, cr, leases)

		first, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")
		require.NoError(t, err)
		second, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")
		require.NoError(t, err)

		assert.Equal(t, first.ChunkCount, second.ChunkCount)
		assert.Len(t, cr.stored["dQw4w9WgXcQ"], second.ChunkCount)
		assert.Equal(t, 2, leases.releases)
	})

	t.Run("storage failure resets processed flag", func(t *testing.T) {
		vr := newFakeVideoRepo(&model.Video{ID: "dQw4w9WgXcQ", ChunksProcessed: true})
		cr := newFakeChunkRepo()
		cr.replaceErr = errors.New(errors.CodeInternal, "connection lost")
		svc := newTestService(&fakeFetcher{segments: testSegments(10)}, &fakeEmbedder{}, vr, cr, newFakeLeases())

		_, err := svc.Ingest(context.Background(), "dQw4w9WgXcQ")

		require.Error(t, err)
		assert.False(t, vr.chunksProcessed["dQw4w9WgXcQ"])
	})
}

// previewChunks runs the chunker the way the service does, to learn the
// chunk texts a given transcript will produce.
func previewChunks(t *testing.T, segments []model.TranscriptSegment) []string {
	t.Helper()
	cfg := testConfig()
	split := chunker.Split(segments, chunker.Options{
		TargetSize: cfg.ChunkTargetSize,
		HardMax:    cfg.ChunkHardMax,
		GapSeconds: cfg.ChunkGapSeconds,
	})
	texts := make([]string, len(split))
	for i, c := range split {
		texts[i] = c.Text
	}
	return texts
}

func TestBackfillEmbeddings(t *testing.T) {
	t.Run("fills missing embeddings", func(t *testing.T) {
		cr := newFakeChunkRepo()
		cr.missing = []*model.TranscriptChunk{
			{ID: 1, VideoID: "dQw4w9WgXcQ", ChunkIndex: 0, Text: "first chunk"},
			{ID: 2, VideoID: "dQw4w9WgXcQ", ChunkIndex: 1, Text: "second chunk"},
		}
		svc := newTestService(&fakeFetcher{}, &fakeEmbedder{}, newFakeVideoRepo(), cr, newFakeLeases())

		n, err := svc.BackfillEmbeddings(context.Background(), "dQw4w9WgXcQ", 10)

		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Len(t, cr.backfilled, 2)
	})

	t.Run("partial failures are reported in the count", func(t *testing.T) {
		cr := newFakeChunkRepo()
		cr.missing = []*model.TranscriptChunk{
			{ID: 1, VideoID: "dQw4w9WgXcQ", ChunkIndex: 0, Text: "good chunk"},
			{ID: 2, VideoID: "dQw4w9WgXcQ", ChunkIndex: 1, Text: "bad chunk"},
		}
		embedder := &fakeEmbedder{failFor: map[string]bool{"bad chunk": true}}
		svc := newTestService(&fakeFetcher{}, embedder, newFakeVideoRepo(), cr, newFakeLeases())

		n, err := svc.BackfillEmbeddings(context.Background(), "dQw4w9WgXcQ", 10)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, cr.backfilled, 1)
	})
}

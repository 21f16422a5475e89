package search

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/mindsift/mindsift/internal/config"
	"github.com/mindsift/mindsift/internal/errors"
	"github.com/mindsift/mindsift/internal/model"
	"github.com/mindsift/mindsift/internal/repository/chunk"
	"github.com/mindsift/mindsift/internal/repository/video"
)

// Embedder turns a query into an embedding vector
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Service retrieves and ranks transcript chunks for a query
type Service interface {
	// Search embeds the query, retrieves candidate chunks within the scope
	// and returns them re-ranked. Scope is a single video or a whole channel.
	Search(ctx context.Context, query string, scope string, targetID string) ([]*model.ScoredChunk, error)
}

type service struct {
	embedder  Embedder
	videoRepo video.Repository
	chunkRepo chunk.Repository
	cfg       config.SearchConfig
}

// NewService creates a search service
func NewService(embedder Embedder, videoRepo video.Repository, chunkRepo chunk.Repository, cfg config.SearchConfig) Service {
	return &service{
		embedder:  embedder,
		videoRepo: videoRepo,
		chunkRepo: chunkRepo,
		cfg:       cfg,
	}
}

// channelVideoLimit bounds how many of a channel's videos feed one search
const channelVideoLimit = 500

func (s *service) Search(ctx context.Context, query, scope, targetID string) ([]*model.ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.CodeInvalidArg, "query is required")
	}
	if targetID == "" {
		return nil, errors.New(errors.CodeInvalidArg, "target ID is required")
	}

	videoIDs, topK, err := s.resolveScope(ctx, scope, targetID)
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return []*model.ScoredChunk{}, nil
	}

	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDependency, "failed to embed query")
	}

	candidates, err := s.chunkRepo.SimilaritySearch(ctx, pgvector.NewVector(vec), videoIDs, topK)
	if err != nil {
		return nil, err
	}

	return Rerank(candidates, query, s.weights(), s.cfg.PerVideoCap, s.cfg.TotalBudget), nil
}

// resolveScope maps the scope onto the set of searchable video IDs and the
// candidate pool size. Channel scope pulls more candidates since balancing
// needs variety across videos.
func (s *service) resolveScope(ctx context.Context, scope, targetID string) ([]string, int, error) {
	switch scope {
	case model.ScopeVideo:
		if _, err := s.videoRepo.GetByID(ctx, targetID); err != nil {
			return nil, 0, err
		}
		return []string{targetID}, s.cfg.TopKVideo, nil
	case model.ScopeChannel:
		videos, err := s.videoRepo.GetByChannelID(ctx, targetID, channelVideoLimit, 0)
		if err != nil {
			return nil, 0, err
		}
		ids := make([]string, 0, len(videos))
		for _, v := range videos {
			if v.ChunksProcessed {
				ids = append(ids, v.ID)
			}
		}
		return ids, s.cfg.TopKChannel, nil
	default:
		return nil, 0, errors.New(errors.CodeInvalidArg, "scope must be video or channel")
	}
}

func (s *service) weights() Weights {
	w := Weights{
		FullQueryMatch: s.cfg.FullQueryMatch,
		TokenOverlap:   s.cfg.TokenOverlap,
		ProperPair:     s.cfg.ProperPair,
		TitleFull:      s.cfg.TitleFull,
		TitlePartial:   s.cfg.TitlePartial,
	}
	if w == (Weights{}) {
		return DefaultWeights()
	}
	return w
}

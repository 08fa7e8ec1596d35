package app

import (
	"context"
	"sort"

	"video_clip_service/internal/media/domain"
	"video_clip_service/internal/media/provider"
	"video_clip_service/internal/media/repository"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// searchScanLimit bounds how many embedded clips one query scans. The
// store has no vector index, so ranking is a linear scan.
const searchScanLimit = 1000

// Searcher ranks clips against a free-text query by cosine similarity
// of their transcript embeddings.
type Searcher struct {
	clips    repository.ClipRepo
	embedder provider.Embedder
}

// NewSearcher create Searcher
func NewSearcher(clips repository.ClipRepo, embedder provider.Embedder) *Searcher {
	return &Searcher{clips: clips, embedder: embedder}
}

// Search embeds the query and returns the topN closest clips.
func (s *Searcher) Search(ctx context.Context, query string, topN int) ([]domain.ClipMatch, error) {
	if topN <= 0 {
		topN = 10
	}

	q, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errprocess.Setf("embed search query failed: %v", err)
	}

	clips, err := s.clips.FindEmbedded(searchScanLimit)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.ClipMatch, 0, len(clips))
	for _, c := range clips {
		vec, err := provider.DecodeVector(c.Embedding)
		if err != nil {
			logger.Log.Warn("skipping clip with undecodable embedding",
				zap.Uint("clip_id", c.ID), zap.Error(err))
			continue
		}
		matches = append(matches, domain.ClipMatch{
			Clip:  c,
			Score: provider.CosineSimilarity(q.Vector, vec),
		})
	}

	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

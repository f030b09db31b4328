// Package reranker re-orders retrieved passages by cross-encoder style
// relevance to the original query.
//
// Reranking is a quality layer, not a dependency: when the scoring
// service is unconfigured or unavailable the package degrades to the
// original similarity ordering, reported through the Degraded flag and
// a log line rather than an error.
package reranker

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/yektalaw/pasokhd/internal/logging"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

// Scorer scores candidate texts against a query. Scores align by index
// with the candidates slice.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float32, error)
}

// Result carries the reranked chunks and whether the service degraded
// to pass-through ordering.
type Result struct {
	Chunks   []vectorstore.Chunk
	Degraded bool
}

// Service applies reranking with threshold filtering and graceful
// degradation.
type Service struct {
	scorer    Scorer // nil means reranking is not configured
	threshold float32
	logger    *logging.Logger
}

// NewService creates a reranking service. A nil scorer disables
// reranking entirely; calls then pass candidates through unchanged.
// A threshold of 0 disables score filtering.
func NewService(scorer Scorer, threshold float32, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{scorer: scorer, threshold: threshold, logger: logger}
}

// Rerank re-orders chunks by relevance to query, truncates to topK and
// drops chunks scoring below the threshold. Scoring failures fall back
// to the original ordering truncated to topK; this is a degradation,
// never an error.
func (s *Service) Rerank(ctx context.Context, query string, chunks []vectorstore.Chunk, topK int) Result {
	if topK <= 0 || topK > len(chunks) {
		topK = len(chunks)
	}
	if len(chunks) == 0 {
		return Result{Chunks: []vectorstore.Chunk{}}
	}

	if s.scorer == nil {
		return Result{Chunks: chunks[:topK], Degraded: true}
	}

	candidates := make([]string, len(chunks))
	for i, c := range chunks {
		candidates[i] = c.Text
	}

	scores, err := s.scorer.Score(ctx, query, candidates)
	if err != nil || len(scores) != len(chunks) {
		s.logger.Warn(ctx, "reranker unavailable, passing through original order",
			zap.Error(err),
			zap.Int("candidates", len(chunks)),
		)
		return Result{Chunks: chunks[:topK], Degraded: true}
	}

	rescored := make([]vectorstore.Chunk, len(chunks))
	copy(rescored, chunks)
	for i := range rescored {
		rescored[i].Score = scores[i]
	}

	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})

	filtered := rescored[:0:len(rescored)]
	for _, c := range rescored {
		if s.threshold > 0 && c.Score < s.threshold {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}

	return Result{Chunks: filtered}
}

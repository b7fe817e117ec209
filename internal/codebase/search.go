package codebase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/klubi/scout/internal/embedding"
	"github.com/klubi/scout/internal/vectordb"
)

// DefaultSearchLimit is the number of chunks GetRelevantCode returns.
const DefaultSearchLimit = 5

// Searcher answers natural-language queries against the vector index.
type Searcher struct {
	embedder embedding.Embedder
	index    *vectordb.Index
	limit    int
	logger   *zap.Logger
}

// NewSearcher creates a Searcher. A non-positive limit means
// DefaultSearchLimit.
func NewSearcher(embedder embedding.Embedder, index *vectordb.Index, limit int, logger *zap.Logger) *Searcher {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &Searcher{embedder: embedder, index: index, limit: limit, logger: logger}
}

// Search returns one "<name> (<filePath>)" line per matching chunk, best
// match first.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(vecs))
	}

	hits, err := s.index.Search(ctx, vecs[0], s.limit)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, fmt.Sprintf("%s (%s)", h.Chunk.Name, h.Chunk.FilePath))
	}
	s.logger.Debug("code search",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
	)
	return lines, nil
}

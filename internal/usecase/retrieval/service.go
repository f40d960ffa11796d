// Package retrieval answers similarity queries over the chunk index: embed
// the query, over-fetch candidates, scope by project, deduplicate by source
// document and return scored excerpts.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// DefaultTopK applies when the caller does not request a result count.
const DefaultTopK = 5

// overFetchFactor widens the raw index query so that project filtering and
// per-document dedup still leave enough candidates to fill topK.
const overFetchFactor = 2

// Service executes retrieval queries.
type Service struct {
	embedder   Embedder
	index      Index
	excerptLen int
	logger     *zap.Logger
}

// New creates a retrieval service. excerptLen bounds the excerpt text
// returned per result, in runes.
func New(embedder Embedder, index Index, excerptLen int, logger *zap.Logger) *Service {
	if excerptLen <= 0 {
		excerptLen = 200
	}
	return &Service{embedder: embedder, index: index, excerptLen: excerptLen, logger: logger}
}

// Retrieve returns up to topK results for query, best score first, at most
// one per source document. An empty projectID searches all chunks; a scoped
// query sees its project's chunks plus chunks indexed without a project.
// Empty or whitespace-only queries return an empty result, not an error.
func (s *Service) Retrieve(ctx context.Context, query, projectID string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(emb.Embedding, topK*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	seen := make(map[string]bool, len(hits))
	results := make([]domain.RetrievalResult, 0, topK)
	for _, h := range hits {
		if projectID != "" && h.Chunk.ProjectID != "" && h.Chunk.ProjectID != projectID {
			continue
		}
		if seen[h.Chunk.DocumentID] {
			continue
		}
		seen[h.Chunk.DocumentID] = true

		results = append(results, domain.RetrievalResult{
			DocumentID:   h.Chunk.DocumentID,
			DocumentName: h.Chunk.DocumentName,
			Excerpt:      truncate(h.Chunk.Text, s.excerptLen),
			Score:        domain.CosineScore(h.Distance),
			Metadata:     h.Chunk.Metadata,
		})
		if len(results) == topK {
			break
		}
	}

	// Hits arrive sorted by distance and CosineScore is monotonic, so the
	// slice is already ordered. Keep the sort as a guard against a future
	// index that relaxes its ordering contract.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	s.logger.Debug("Retrieval completed",
		zap.String("project_id", projectID),
		zap.Int("candidates", len(hits)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

package retrieval

import (
	"context"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index is the read side of the vector index.
type Index interface {
	Search(vector []float32, k int) ([]domain.SearchHit, error)
}

package indexing

import (
	"context"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Chunker splits document text into embedding-sized segments.
type Chunker interface {
	Split(text string) []string
}

// Embedder vectorizes chunk texts in batch, one vector per input.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Index is the storage contract for indexing operations.
type Index interface {
	Add(chunks []domain.Chunk) error
	RemoveDocument(documentID string) (int, error)
	HasDocument(documentID string) bool
	Save() error
}

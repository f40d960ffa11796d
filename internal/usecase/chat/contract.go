package chat

import (
	"context"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Retriever finds document excerpts relevant to the user's question.
type Retriever interface {
	Retrieve(ctx context.Context, query, projectID string, topK int) ([]domain.RetrievalResult, error)
}

// Completer is the language-model client, streaming and non-streaming.
type Completer interface {
	Complete(ctx context.Context, turns []domain.ConversationTurn) (domain.Completion, error)
	CompleteStream(ctx context.Context, turns []domain.ConversationTurn) (domain.CompletionStream, error)
	Model() string
}

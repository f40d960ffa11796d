package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
)

func init() { metrics.RegisterAIMetrics() }

type flakyEmbedder struct {
	failOn   map[string]bool
	batchErr error
}

func (f *flakyEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if f.failOn[text] {
		return domain.EmbeddingResult{}, errors.New("provider unreachable")
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 2, 3}, TotalTokens: 5}, nil
}

func (f *flakyEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if f.batchErr != nil {
		return domain.BatchEmbeddingResult{}, f.batchErr
	}
	return domain.BatchFallback(ctx, f, texts)
}

func TestEmbed_SubstitutesZeroVectorOnFailure(t *testing.T) {
	e := New(&flakyEmbedder{failOn: map[string]bool{"bad": true}}, 3, "m", zap.NewNop())

	res, err := e.Embed(context.Background(), "bad")
	require.NoError(t, err, "degradation must not surface as an error")
	require.Len(t, res.Embedding, 3)
	for _, v := range res.Embedding {
		assert.Zero(t, v)
	}
}

func TestEmbed_PassesThroughOnSuccess(t *testing.T) {
	e := New(&flakyEmbedder{}, 3, "m", zap.NewNop())

	res, err := e.Embed(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, res.Embedding)
	assert.Equal(t, 5, res.TotalTokens)
}

func TestEmbed_WrongDimensionDegrades(t *testing.T) {
	e := New(&flakyEmbedder{}, 8, "m", zap.NewNop())

	res, err := e.Embed(context.Background(), "ok")
	require.NoError(t, err)
	require.Len(t, res.Embedding, 8, "wrong-dimension vectors must be replaced, not passed through")
}

func TestBatchEmbed_LengthAlwaysMatchesInput(t *testing.T) {
	e := New(&flakyEmbedder{failOn: map[string]bool{"b": true}, batchErr: errors.New("batch down")},
		3, "m", zap.NewNop())

	res, err := e.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, res.Embeddings, 3)

	assert.Equal(t, []float32{1, 2, 3}, res.Embeddings[0])
	assert.Equal(t, []float32{0, 0, 0}, res.Embeddings[1], "failed item gets a zero vector")
	assert.Equal(t, []float32{1, 2, 3}, res.Embeddings[2], "one failure must not sink the batch")
}

func TestBatchEmbed_EmptyInput(t *testing.T) {
	e := New(&flakyEmbedder{}, 3, "m", zap.NewNop())

	res, err := e.BatchEmbed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Embeddings)
}

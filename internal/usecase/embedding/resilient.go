// Package embedding holds decorators around the embedding provider.
package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
	"github.com/konghaojie-k2/ai-project-space/internal/metrics"
)

// ResilientEmbedder degrades provider failures to zero vectors of the fixed
// dimension, so downstream code never has to special-case a missing
// embedding. A zero vector scores 0 against every real query under cosine
// similarity, degenerate but harmless. Failures are logged and counted.
type ResilientEmbedder struct {
	inner  domain.Embedder
	dim    int
	model  string
	logger *zap.Logger
}

// New creates the degradation decorator. It is the outermost layer of the
// embedder chain: callers above it never see an embedding error.
func New(inner domain.Embedder, dim int, model string, logger *zap.Logger) *ResilientEmbedder {
	return &ResilientEmbedder{inner: inner, dim: dim, model: model, logger: logger}
}

// Dimensions returns the fixed vector dimension.
func (e *ResilientEmbedder) Dimensions() int { return e.dim }

// Embed returns the inner embedding, or a zero vector when the provider
// fails or returns a vector of the wrong dimension.
func (e *ResilientEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, text)
	if err != nil {
		e.degrade(err)
		return domain.EmbeddingResult{Embedding: domain.ZeroVector(e.dim)}, nil
	}
	if len(res.Embedding) != e.dim {
		e.degradeDim(len(res.Embedding))
		return domain.EmbeddingResult{Embedding: domain.ZeroVector(e.dim)}, nil
	}
	return res, nil
}

// BatchEmbed always returns exactly one vector per input, in input order.
// A wholesale batch failure is retried item by item so a single bad input
// cannot sink the rest; items that still fail get zero vectors.
func (e *ResilientEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult
	var err error
	if be, ok := e.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(ctx, texts)
	} else {
		res, err = domain.BatchFallback(ctx, e.inner, texts)
	}

	if err != nil {
		e.logger.Warn("Batch embedding failed, retrying per item",
			zap.Int("texts", len(texts)), zap.Error(err))
		return e.perItem(ctx, texts), nil
	}
	if len(res.Embeddings) != len(texts) {
		e.logger.Warn("Batch embedding returned wrong count, retrying per item",
			zap.Int("got", len(res.Embeddings)), zap.Int("want", len(texts)))
		return e.perItem(ctx, texts), nil
	}
	for i, vec := range res.Embeddings {
		if len(vec) != e.dim {
			e.degradeDim(len(vec))
			res.Embeddings[i] = domain.ZeroVector(e.dim)
		}
	}
	return res, nil
}

func (e *ResilientEmbedder) perItem(ctx context.Context, texts []string) domain.BatchEmbeddingResult {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, _ := e.Embed(ctx, text)
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out
}

// HealthCheck delegates to the inner embedder when it supports it.
func (e *ResilientEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (e *ResilientEmbedder) degrade(err error) {
	metrics.EmbeddingDegradedTotal.WithLabelValues(e.model).Inc()
	e.logger.Warn("Embedding failed, substituting zero vector", zap.Error(err))
}

func (e *ResilientEmbedder) degradeDim(got int) {
	metrics.EmbeddingDegradedTotal.WithLabelValues(e.model).Inc()
	e.logger.Warn("Embedding has wrong dimension, substituting zero vector",
		zap.Int("got", got), zap.Int("want", e.dim))
}

// Package health reports engine readiness for the health endpoint.
package health

import (
	"context"
	"time"
)

// EmbeddingProber checks reachability of the embedding provider.
type EmbeddingProber interface {
	HealthCheck(ctx context.Context) error
}

// Index is the read-only view needed for the probe.
type Index interface {
	Ready() bool
	Len() int
}

// Status is the health report returned to callers.
type Status struct {
	Status         string `json:"status"` // "healthy" or "degraded"
	EmbeddingReady bool   `json:"embedding_ready"`
	IndexReady     bool   `json:"index_ready"`
	ChunkCount     int    `json:"chunk_count"`
}

const probeTimeout = 5 * time.Second

// Service aggregates component readiness.
type Service struct {
	prober EmbeddingProber
	index  Index
}

// New creates a health service.
func New(prober EmbeddingProber, index Index) *Service {
	return &Service{prober: prober, index: index}
}

// Check probes the embedding provider and inspects the index. It always
// returns a status; a degraded engine still serves fallback chat, so health
// never hard-fails.
func (s *Service) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	st := Status{
		EmbeddingReady: s.prober.HealthCheck(ctx) == nil,
		IndexReady:     s.index.Ready(),
		ChunkCount:     s.index.Len(),
	}
	if st.EmbeddingReady && st.IndexReady {
		st.Status = "healthy"
	} else {
		st.Status = "degraded"
	}
	return st
}

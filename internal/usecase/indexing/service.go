// Package indexing turns extracted document text into persisted vector
// chunks: split, embed, evict stale chunks, append, snapshot.
package indexing

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Request carries one document to (re)index. Text must already be extracted
// by the upstream content-extraction step.
type Request struct {
	DocumentID   string
	DocumentName string
	ProjectID    string
	Text         string
	Metadata     map[string]string
}

// Service is the single writer over the index. Interactive searches read
// the index concurrently and are never blocked by an in-progress job.
type Service struct {
	chunker  Chunker
	embedder Embedder
	index    Index
	logger   *zap.Logger

	// mu serializes the whole evict+add+save sequence so a save always
	// reflects every add that completed before it started.
	mu sync.Mutex
}

// New creates an indexing service.
func New(chunker Chunker, embedder Embedder, index Index, logger *zap.Logger) *Service {
	return &Service{chunker: chunker, embedder: embedder, index: index, logger: logger}
}

// IndexDocument chunks, embeds and indexes one document, replacing any
// previously indexed chunks for the same document id. Returns the number of
// chunks indexed. Empty or whitespace-only text indexes zero chunks (and
// still evicts stale ones); that is not an error.
func (s *Service) IndexDocument(ctx context.Context, req Request) (int, error) {
	if req.DocumentID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	texts := s.chunker.Split(req.Text)

	var chunks []domain.Chunk
	if len(texts) > 0 {
		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}

		chunks = make([]domain.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = domain.Chunk{
				ID:           req.DocumentID + ":" + strconv.Itoa(i),
				DocumentID:   req.DocumentID,
				DocumentName: req.DocumentName,
				ProjectID:    req.ProjectID,
				Sequence:     i,
				TotalChunks:  len(texts),
				Text:         text,
				Embedding:    res.Embeddings[i],
				Metadata:     withContentLength(req.Metadata, len(text)),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete-then-reinsert: the index never deduplicates on its own.
	if s.index.HasDocument(req.DocumentID) {
		if _, err := s.index.RemoveDocument(req.DocumentID); err != nil {
			return 0, fmt.Errorf("evict stale chunks: %w", err)
		}
	}
	if len(chunks) > 0 {
		if err := s.index.Add(chunks); err != nil {
			return 0, fmt.Errorf("add chunks: %w", err)
		}
	}
	if err := s.index.Save(); err != nil {
		return 0, fmt.Errorf("persist index: %w", err)
	}

	s.logger.Info("Document indexed",
		zap.String("document_id", req.DocumentID),
		zap.String("project_id", req.ProjectID),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// RemoveDocument drops all chunks of a document and persists the result.
// Returns false when the document had no chunks in the index.
func (s *Service) RemoveDocument(_ context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.index.RemoveDocument(documentID)
	if err != nil {
		return false, fmt.Errorf("remove document: %w", err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := s.index.Save(); err != nil {
		return false, fmt.Errorf("persist index: %w", err)
	}

	s.logger.Info("Document removed from index",
		zap.String("document_id", documentID),
		zap.Int("chunks", removed),
	)
	return true, nil
}

func withContentLength(meta map[string]string, length int) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["content_length"] = strconv.Itoa(length)
	return out
}

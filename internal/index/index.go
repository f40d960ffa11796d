// Package index implements the durable, reloadable similarity index over
// chunk vectors. The live index is an in-memory flat structure guarded by a
// RWMutex; persistence is a periodic snapshot to disk (see snapshot.go).
// The access pattern is append-mostly, read-heavy, single-writer, so a flat
// index with brute-force cosine search is sufficient and keeps the engine
// free of an external database dependency.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// Index is the process-wide vector index. Readers may observe a slightly
// stale view while a write is in flight; that is acceptable.
type Index struct {
	dir    string
	dim    int
	logger *zap.Logger

	mu     sync.RWMutex
	chunks []domain.Chunk
	docs   map[string]domain.DocumentInfo
	closed bool

	// saveMu serializes snapshot writes; concurrent Save calls are not
	// supported by the on-disk format.
	saveMu sync.Mutex
}

// Open creates an index rooted at dir and loads the persisted snapshot if
// one exists. A missing or corrupt snapshot is not fatal: the index starts
// empty and the condition is logged, which means prior indexing work must
// be redone by the ingestion caller.
func Open(dir string, dim int, logger *zap.Logger) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dim)
	}
	ix := &Index{
		dir:    dir,
		dim:    dim,
		logger: logger,
		docs:   make(map[string]domain.DocumentInfo),
	}
	ix.load()
	return ix, nil
}

// Add appends chunks to the in-memory structure. It never deduplicates:
// callers must evict a document's old chunks before reinsertion.
func (ix *Index) Add(chunks []domain.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != ix.dim {
			return fmt.Errorf(
				"chunk %d: got %d dimensions, want %d: %w",
				i, len(c.Embedding), ix.dim, domain.ErrVectorDimMismatch,
			)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return domain.ErrIndexClosed
	}

	ix.chunks = append(ix.chunks, chunks...)
	for _, c := range chunks {
		info := ix.docs[c.DocumentID]
		info.Name = c.DocumentName
		info.ProjectID = c.ProjectID
		info.ChunkCount++
		ix.docs[c.DocumentID] = info
	}
	return nil
}

// RemoveDocument drops all chunks belonging to documentID. The flat index
// has no delete primitive, so this rebuilds the chunk slice excluding the
// document. Returns the number of chunks removed.
func (ix *Index) RemoveDocument(documentID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, domain.ErrIndexClosed
	}

	kept := make([]domain.Chunk, 0, len(ix.chunks))
	removed := 0
	for _, c := range ix.chunks {
		if c.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	ix.chunks = kept
	delete(ix.docs, documentID)
	return removed, nil
}

// Search returns the k nearest chunks to vector by cosine distance, sorted
// ascending. Fewer than k entries means all of them; an empty index returns
// an empty result, never an error.
func (ix *Index) Search(vector []float32, k int) ([]domain.SearchHit, error) {
	if len(vector) != ix.dim {
		return nil, fmt.Errorf(
			"query: got %d dimensions, want %d: %w",
			len(vector), ix.dim, domain.ErrVectorDimMismatch,
		)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, domain.ErrIndexClosed
	}

	hits := make([]domain.SearchHit, len(ix.chunks))
	for i, c := range ix.chunks {
		hits[i] = domain.SearchHit{Chunk: c, Distance: cosineDistance(vector, c.Embedding)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Ready reports whether the index accepts operations.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return !ix.closed
}

// HasDocument reports whether documentID has chunks in the index.
func (ix *Index) HasDocument(documentID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[documentID]
	return ok
}

// Documents returns a copy of the per-document manifest.
func (ix *Index) Documents() map[string]domain.DocumentInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]domain.DocumentInfo, len(ix.docs))
	for id, info := range ix.docs {
		out[id] = info
	}
	return out
}

// Close marks the index closed. It does not save; callers decide whether
// the final state is worth persisting.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	return nil
}

// cosineDistance is 1 - cosine similarity, in [0,2]. A zero vector on either
// side yields similarity 0, i.e. distance 1.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

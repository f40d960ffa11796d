package domain

// Chunk is one indexed segment of a document together with its embedding.
// Chunks are immutable once added to the index; reprocessing a document is
// modeled as remove-then-reinsert of all its chunks.
type Chunk struct {
	ID           string
	DocumentID   string
	DocumentName string
	ProjectID    string // empty = globally visible
	Sequence     int
	TotalChunks  int
	Text         string
	Embedding    []float32
	Metadata     map[string]string
}

// DocumentInfo is the per-document manifest entry persisted alongside the index.
type DocumentInfo struct {
	Name       string `json:"name"`
	ProjectID  string `json:"project_id,omitempty"`
	ChunkCount int    `json:"chunk_count"`
}

// SearchHit is one raw index result: a chunk and its cosine distance to the
// query vector.
type SearchHit struct {
	Chunk    Chunk
	Distance float64
}

// RetrievalResult is a single deduplicated search hit: the best-scoring chunk
// of one source document.
type RetrievalResult struct {
	DocumentID   string
	DocumentName string
	Excerpt      string
	Score        float64 // in [0,1], higher = more similar
	Metadata     map[string]string
}

// CosineScore converts a cosine distance in [0,2] into a display relevance
// score in [0,1]. This is the transform the original system shipped with; it
// is a monotonic heuristic, not a calibrated probability, and its useful
// range depends on how the embedding model concentrates distances.
func CosineScore(distance float64) float64 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/konghaojie-k2/ai-project-space/internal/domain"
)

// On-disk layout: one snapshot file with all entries, one sidecar manifest
// mapping document id to name/project/chunk count. Both are written to a
// temporary path and renamed into place, so a crash mid-save never corrupts
// the previous snapshot.
const (
	snapshotFile = "index.json"
	manifestFile = "manifest.json"

	snapshotVersion = 1
)

type entryDTO struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	DocumentName string            `json:"document_name"`
	ProjectID    string            `json:"project_id,omitempty"`
	Sequence     int               `json:"sequence"`
	TotalChunks  int               `json:"total_chunks"`
	Text         string            `json:"text"`
	Vector       []byte            `json:"vector"` // little-endian float32
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type snapshotDTO struct {
	Version    int        `json:"version"`
	Dimensions int        `json:"dimensions"`
	Entries    []entryDTO `json:"entries"`
}

// Save serializes the index and manifest to disk. It copies the live state
// under a read lock, so concurrent searches are never blocked by disk I/O.
// Concurrent Save calls are serialized internally; the indexing layer is
// still expected to be the single writer.
func (ix *Index) Save() error {
	ix.saveMu.Lock()
	defer ix.saveMu.Unlock()

	ix.mu.RLock()
	if ix.closed {
		ix.mu.RUnlock()
		return domain.ErrIndexClosed
	}
	snap := snapshotDTO{
		Version:    snapshotVersion,
		Dimensions: ix.dim,
		Entries:    make([]entryDTO, len(ix.chunks)),
	}
	for i, c := range ix.chunks {
		snap.Entries[i] = entryDTO{
			ID:           c.ID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			ProjectID:    c.ProjectID,
			Sequence:     c.Sequence,
			TotalChunks:  c.TotalChunks,
			Text:         c.Text,
			Vector:       vectorToBytes(c.Embedding),
			Metadata:     c.Metadata,
		}
	}
	manifest := make(map[string]domain.DocumentInfo, len(ix.docs))
	for id, info := range ix.docs {
		manifest[id] = info
	}
	ix.mu.RUnlock()

	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(ix.dir, snapshotFile), snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(ix.dir, manifestFile), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// load reads the persisted snapshot into memory. Any failure leaves the
// index empty and is logged as a warning; load never fails the process.
func (ix *Index) load() {
	data, err := os.ReadFile(filepath.Join(ix.dir, snapshotFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ix.logger.Warn("Failed to read index snapshot, starting empty", zap.Error(err))
		}
		return
	}

	var snap snapshotDTO
	if err := json.Unmarshal(data, &snap); err != nil {
		ix.logger.Warn("Corrupt index snapshot, starting empty", zap.Error(err))
		return
	}
	if snap.Dimensions != ix.dim {
		ix.logger.Warn("Index snapshot dimension mismatch, starting empty",
			zap.Int("snapshot_dim", snap.Dimensions),
			zap.Int("configured_dim", ix.dim),
		)
		return
	}

	chunks := make([]domain.Chunk, 0, len(snap.Entries))
	docs := make(map[string]domain.DocumentInfo)
	for i, e := range snap.Entries {
		vec, err := bytesToVector(e.Vector)
		if err != nil || len(vec) != ix.dim {
			ix.logger.Warn("Corrupt index entry, starting empty",
				zap.Int("entry", i), zap.Error(err))
			return
		}
		chunks = append(chunks, domain.Chunk{
			ID:           e.ID,
			DocumentID:   e.DocumentID,
			DocumentName: e.DocumentName,
			ProjectID:    e.ProjectID,
			Sequence:     e.Sequence,
			TotalChunks:  e.TotalChunks,
			Text:         e.Text,
			Embedding:    vec,
			Metadata:     e.Metadata,
		})
		info := docs[e.DocumentID]
		info.Name = e.DocumentName
		info.ProjectID = e.ProjectID
		info.ChunkCount++
		docs[e.DocumentID] = info
	}

	// The manifest sidecar is authoritative when readable; otherwise the
	// version derived from the entries above stands in.
	if data, err := os.ReadFile(filepath.Join(ix.dir, manifestFile)); err == nil {
		var manifest map[string]domain.DocumentInfo
		if err := json.Unmarshal(data, &manifest); err == nil {
			docs = manifest
		} else {
			ix.logger.Warn("Corrupt manifest sidecar, derived from snapshot instead", zap.Error(err))
		}
	}

	ix.chunks = chunks
	ix.docs = docs
	ix.logger.Info("Index loaded",
		zap.Int("chunks", len(chunks)),
		zap.Int("documents", len(docs)),
	)
}

// writeFileAtomic marshals v to path via a temporary file and rename.
func writeFileAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

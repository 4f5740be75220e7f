// Package kb builds and queries the knowledge index used to answer caller
// questions during live sessions. An index is an immutable snapshot: it is
// produced wholesale by ingestion, persisted atomically, and shared read-only
// across concurrent sessions.
package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Chunk is one bounded slice of source text with its unit-normalized
// embedding vector.
type Chunk struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

type Index struct {
	CreatedAt      time.Time `json:"created_at"`
	EmbeddingModel string    `json:"embedding_model"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	Sources        []string  `json:"sources"`
	Chunks         []Chunk   `json:"chunks"`
}

// LoadIndex reads an index snapshot from disk. A missing file or a
// structurally invalid document (no chunk list) means the index is absent,
// which is reported as (nil, nil) rather than an error.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, nil
	}
	if idx.Chunks == nil {
		return nil, nil
	}
	return &idx, nil
}

// SaveIndex writes the snapshot atomically: the document lands at a temporary
// path first and is renamed into place, so a concurrent reader never observes
// a partially written index.
func SaveIndex(path string, idx *Index) error {
	if idx == nil {
		return fmt.Errorf("index is nil")
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Store holds the currently published index snapshot. Readers take a snapshot
// reference at query time; re-ingestion publishes a replacement without
// disturbing readers still holding the old one.
type Store struct {
	path    string
	current atomic.Pointer[Index]
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Reload loads the snapshot at the store's path and publishes it. An absent
// index publishes nil, which Search reports as kb_not_ready.
func (s *Store) Reload() error {
	idx, err := LoadIndex(s.path)
	if err != nil {
		return err
	}
	s.current.Store(idx)
	return nil
}

func (s *Store) Publish(idx *Index) {
	s.current.Store(idx)
}

func (s *Store) Snapshot() *Index {
	if s == nil {
		return nil
	}
	return s.current.Load()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// normalizeVector scales v to unit length in place so that a dot product
// against another unit vector equals cosine similarity. Zero vectors are
// left as-is.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

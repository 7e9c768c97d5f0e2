package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

const (
	vectorsFile = "vectors.bin"
	chunksFile  = "chunks.json"
)

// FileStore persists one Flat index plus chunk metadata per scope key under
// a base directory. Writers against the same scope key are serialized by a
// per-key mutex; a load → append → persist cycle done through Mutate can
// never lose another writer's additions.
type FileStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}
}

func (s *FileStore) keyLock(scopeKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[scopeKey]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scopeKey] = l
	}
	return l
}

func (s *FileStore) paths(scopeKey string) (dir, vectors, chunks string) {
	dir = filepath.Join(s.baseDir, scopeKey)
	return dir, filepath.Join(dir, vectorsFile), filepath.Join(dir, chunksFile)
}

// LoadOrCreate returns the persisted index/metadata pair for scopeKey, or a
// fresh empty pair if none exists yet. The scope directory is created
// idempotently. A vector/metadata length mismatch is corruption and fails
// loudly; truncating to the shorter side would misattribute metadata.
func (s *FileStore) LoadOrCreate(scopeKey string) (*Flat, []domain.Chunk, error) {
	dir, vecPath, chunkPath := s.paths(scopeKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("index: mkdir %s: %w", dir, err)
	}

	if _, err := os.Stat(vecPath); errors.Is(err, os.ErrNotExist) {
		return &Flat{}, nil, nil
	}

	flat, err := readVectors(vecPath)
	if err != nil {
		return nil, nil, fmt.Errorf("index: load %s: %w", scopeKey, err)
	}

	meta, err := readChunks(chunkPath)
	if err != nil {
		return nil, nil, fmt.Errorf("index: load %s: %w", scopeKey, err)
	}

	if err := checkParallel(flat, meta); err != nil {
		return nil, nil, fmt.Errorf("index: load %s: %w", scopeKey, err)
	}
	return flat, meta, nil
}

// AppendBatch adds vectors and parallel metadata to the in-memory pair.
// Nothing is persisted until Persist; the batch must itself be parallel.
func AppendBatch(flat *Flat, meta []domain.Chunk, vectors [][]float32, batch []domain.Chunk) ([]domain.Chunk, error) {
	if len(vectors) != len(batch) {
		return meta, fmt.Errorf("index: append %d vectors with %d metadata entries", len(vectors), len(batch))
	}
	if err := flat.Add(vectors); err != nil {
		return meta, err
	}
	meta = append(meta, batch...)
	if err := checkParallel(flat, meta); err != nil {
		return meta, err
	}
	return meta, nil
}

// Persist atomically writes both artifacts for scopeKey. Each artifact is
// written to a temp file and renamed into place, vectors first and metadata
// last, so an interrupted persist leaves either the prior pair or a
// detectable mismatch, never a silently mixed state.
func (s *FileStore) Persist(scopeKey string, flat *Flat, meta []domain.Chunk) error {
	if err := checkParallel(flat, meta); err != nil {
		return fmt.Errorf("index: persist %s: %w", scopeKey, err)
	}

	dir, vecPath, chunkPath := s.paths(scopeKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: mkdir %s: %w", dir, err)
	}

	if err := writeAtomic(vecPath, func(w io.Writer) error { return writeVectors(w, flat) }); err != nil {
		return fmt.Errorf("index: persist %s vectors: %w", scopeKey, err)
	}
	if err := writeAtomic(chunkPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("index: persist %s chunks: %w", scopeKey, err)
	}
	return nil
}

// Mutate runs fn with the scope key's writer lock held, handing it the loaded
// pair and persisting whatever fn returns. This is the only safe way to do a
// concurrent load → append → persist cycle.
func (s *FileStore) Mutate(scopeKey string, fn func(*Flat, []domain.Chunk) (*Flat, []domain.Chunk, error)) error {
	l := s.keyLock(scopeKey)
	l.Lock()
	defer l.Unlock()

	flat, meta, err := s.LoadOrCreate(scopeKey)
	if err != nil {
		return err
	}
	flat, meta, err = fn(flat, meta)
	if err != nil {
		return err
	}
	return s.Persist(scopeKey, flat, meta)
}

// Upsert appends a parallel vector/metadata batch to scopeKey's index under
// the writer lock and persists the result. Matches the write shape of the
// qdrant-backed store so either can sit behind the ingestion pipeline.
func (s *FileStore) Upsert(ctx context.Context, scopeKey string, vectors [][]float32, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Mutate(scopeKey, func(flat *Flat, meta []domain.Chunk) (*Flat, []domain.Chunk, error) {
		meta, err := AppendBatch(flat, meta, vectors, chunks)
		return flat, meta, err
	})
}

// ListScopes returns every scope key with a persisted index.
func (s *FileStore) ListScopes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("index: list scopes: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.baseDir, e.Name(), vectorsFile)); err == nil {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

// Search loads the scope key's index and returns up to k nearest chunks by
// ascending L2 distance. A missing or empty index yields no results.
func (s *FileStore) Search(ctx context.Context, scopeKey string, query []float32, k int) ([]domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flat, meta, err := s.LoadOrCreate(scopeKey)
	if err != nil {
		return nil, err
	}
	hits := flat.Search(query, k)
	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		c := meta[h.Pos]
		results = append(results, domain.RetrievalResult{
			Text:     c.Text,
			DocID:    c.DocID,
			DocTitle: c.DocTitle,
			Score:    h.Distance,
		})
	}
	return results, nil
}

// --- artifact codecs ---

// Vector artifact layout: uint32 dim, uint32 count, then count*dim float32
// values, all little-endian.

func writeVectors(w io.Writer, flat *Flat) error {
	hdr := [2]uint32{uint32(flat.Dim), uint32(flat.Len())}
	if err := binary.Write(w, binary.LittleEndian, hdr[:]); err != nil {
		return err
	}
	for _, v := range flat.Vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readVectors(path string) (*Flat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hdr [2]uint32
	if err := binary.Read(f, binary.LittleEndian, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: vector header: %v", domain.ErrIndexCorrupt, err)
	}
	dim, count := int(hdr[0]), int(hdr[1])
	if dim < 0 || count < 0 || (count > 0 && dim == 0) || count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: vector header dim=%d count=%d", domain.ErrIndexCorrupt, dim, count)
	}

	flat := &Flat{Dim: dim, Vectors: make([][]float32, 0, count)}
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: vector %d: %v", domain.ErrIndexCorrupt, i, err)
		}
		flat.Vectors = append(flat.Vectors, v)
	}
	return flat, nil
}

func readChunks(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Vectors present without metadata: a torn write. Fail loudly.
			return nil, fmt.Errorf("%w: metadata artifact missing", domain.ErrIndexCorrupt)
		}
		return nil, err
	}
	defer f.Close()

	var meta []domain.Chunk
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", domain.ErrIndexCorrupt, err)
	}
	return meta, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

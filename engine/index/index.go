// Package index implements the scope-keyed vector index: a flat L2 index with
// parallel chunk metadata, persisted as a pair of artifacts per scope key.
package index

import (
	"fmt"
	"sort"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

// Flat is an exact nearest-neighbour index over fixed-dimension vectors.
// The zero dimension is fixed by the first appended batch.
type Flat struct {
	Dim     int
	Vectors [][]float32
}

// Hit is one nearest-neighbour match: the vector's position in the index and
// its L2 distance to the query (lower = closer).
type Hit struct {
	Pos      int
	Distance float32
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.Vectors) }

// Add appends vectors. All vectors in a batch must share the index dimension.
func (f *Flat) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if f.Dim == 0 {
			f.Dim = len(v)
		}
		if len(v) != f.Dim {
			return fmt.Errorf("index: vector dim %d != index dim %d", len(v), f.Dim)
		}
	}
	f.Vectors = append(f.Vectors, vectors...)
	return nil
}

// Search returns up to k nearest vectors by squared L2 distance, ascending.
// An empty index returns no hits rather than an error.
func (f *Flat) Search(query []float32, k int) []Hit {
	if len(f.Vectors) == 0 || k <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(f.Vectors))
	for i, v := range f.Vectors {
		hits = append(hits, Hit{Pos: i, Distance: l2(query, v)})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// l2 computes squared Euclidean distance. Squared distance preserves ranking
// and matches the flat-L2 convention of ascending scores.
func l2(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// checkParallel enforces the core invariant: vectors and metadata stay in
// lockstep. Violations are never repaired silently.
func checkParallel(f *Flat, meta []domain.Chunk) error {
	if f.Len() != len(meta) {
		return fmt.Errorf("%w: %d vectors vs %d metadata entries",
			domain.ErrIndexCorrupt, f.Len(), len(meta))
	}
	return nil
}

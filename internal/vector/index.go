// Package vector provides the append-only flat vector index used for similarity retrieval.
package vector

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is a single search result: the append position of the vector and its similarity score.
type Hit struct {
	Position int
	Score    float64 // inner product of normalized vectors, higher is better
}

// Index is an append-only flat vector index. Vectors are addressed by their append
// position: the first Add gets position 0, the next 1, and so on. Positions are never
// reused and entries are never removed; logical deletes are the caller's concern
// (the document store keeps deleted positions unresolvable).
//
// Index is not safe for concurrent use. The document store owns it together with the
// metadata table and serializes all access under one lock.
type Index struct {
	dimensions int
	vectors    [][]float32
}

// New creates an empty index for vectors of the given dimension.
func New(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Index{dimensions: dimensions}, nil
}

// Dimensions returns the vector dimension the index was created with.
func (ix *Index) Dimensions() int {
	return ix.dimensions
}

// Size returns the number of vectors in the index, including tombstoned positions.
func (ix *Index) Size() int {
	return len(ix.vectors)
}

// Add appends vec and returns its position. The vector is copied and L2-normalized
// before insertion, so the embedding service is never trusted to produce unit-norm
// output. Returns ErrDimensionMismatch if len(vec) is wrong; the index is unchanged.
func (ix *Index) Add(vec []float32) (int, error) {
	if len(vec) != ix.dimensions {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), ix.dimensions)
	}
	normalized := make([]float32, ix.dimensions)
	copy(normalized, vec)
	Normalize(normalized)
	position := len(ix.vectors)
	ix.vectors = append(ix.vectors, normalized)
	return position, nil
}

// Search returns up to k positions ranked by inner product with the normalized query,
// highest first. Ties are broken by ascending position so results are reproducible.
// The index has no notion of logical deletes; callers that filter tombstones should
// over-fetch (the document store requests at least twice the live results it needs).
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), ix.dimensions)
	}
	if k <= 0 || len(ix.vectors) == 0 {
		return nil, nil
	}
	q := make([]float32, ix.dimensions)
	copy(q, query)
	Normalize(q)

	hits := make([]Hit, len(ix.vectors))
	for i, vec := range ix.vectors {
		hits[i] = Hit{Position: i, Score: InnerProduct(q, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Snapshot returns a point-in-time view for persistence. Only the outer slice is
// copied: stored vectors are immutable once added, so the snapshot stays valid while
// new vectors are appended. Take the snapshot under the store's lock; encoding and
// writing can then happen outside it.
func (ix *Index) Snapshot() *Snapshot {
	vectors := make([][]float32, len(ix.vectors))
	copy(vectors, ix.vectors)
	return &Snapshot{dimensions: ix.dimensions, vectors: vectors}
}

// Snapshot is an immutable view of an index used for serialization.
type Snapshot struct {
	dimensions int
	vectors    [][]float32
}

// Count returns the number of vectors in the snapshot.
func (s *Snapshot) Count() int {
	return len(s.vectors)
}

// Dimensions returns the vector dimension of the snapshot.
func (s *Snapshot) Dimensions() int {
	return s.dimensions
}

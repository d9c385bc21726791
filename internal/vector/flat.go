package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ctxCheckInterval is how many stored vectors are scored between context checks.
const ctxCheckInterval = 4096

// FlatIndex is an exact brute-force index over L2-normalized vectors. Cosine
// similarity is the inner product of the normalized query and every stored vector.
// ids[i] always names vectors[i].
type FlatIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// New creates an empty flat index. A dimension of 0 leaves the dimension unset
// until the first successful Add.
func New(dimensions int) (*FlatIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative: %d", dimensions)
	}
	if dimensions > MaxDimensions {
		return nil, fmt.Errorf("%w: %d exceeds limit %d", ErrDimensionMismatch, dimensions, MaxDimensions)
	}
	return &FlatIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Add normalizes and appends vectors with the given ids, in order. The batch is
// validated as a whole first: on any error nothing is appended.
func (f *FlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return ErrEmptyBatch
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dim := f.dimensions
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("%w: first vector is empty", ErrDimensionMismatch)
		}
		if dim > MaxDimensions {
			return fmt.Errorf("%w: %d components exceeds limit %d", ErrDimensionMismatch, dim, MaxDimensions)
		}
	}
	normalized := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != dim {
			return fmt.Errorf("%w: entry %d (%q) has %d components, expected %d", ErrDimensionMismatch, i, ids[i], len(vec), dim)
		}
		unit, err := Normalize(vec)
		if err != nil {
			return &DegenerateVectorError{Position: i, ID: ids[i]}
		}
		normalized[i] = unit
	}

	f.dimensions = dim
	f.ids = append(f.ids, ids...)
	f.vectors = append(f.vectors, normalized...)
	return nil
}

// Search returns the top-k stored vectors by cosine similarity to query.
// Ties keep insertion order. When k exceeds the index size every entry is returned.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.ids) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("%w: query has %d components, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, &DegenerateVectorError{Position: -1}
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(f.vectors))
	for i, vec := range f.vectors {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scores[i] = scored{pos: i, score: clampScore(InnerProduct(q, vec))}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].pos < scores[j].pos
	})
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]Match, k)
	for i := 0; i < k; i++ {
		result[i] = Match{ID: f.ids[scores[i].pos], Score: scores[i].score}
	}
	return result, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimensions returns the vector dimension, or 0 if no vector has been added yet.
func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// IDs returns a copy of the identifiers in insertion order.
func (f *FlatIndex) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.ids...)
}

// Vector returns a copy of the normalized vector stored at position i.
func (f *FlatIndex) Vector(i int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.vectors) {
		return nil, false
	}
	return append([]float32(nil), f.vectors[i]...), true
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

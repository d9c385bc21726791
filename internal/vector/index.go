// Package vector provides the flat similarity index over normalized embeddings.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// MaxDimensions is the largest vector dimension an index accepts and persists.
const MaxDimensions = 1 << 16

var (
	// ErrNotFound is returned by Load when no index exists at the path.
	ErrNotFound = errors.New("vector index not found")
	// ErrCorrupt is returned by Load when the stored index is inconsistent.
	ErrCorrupt = errors.New("vector index corrupt")
	// ErrDegenerateVector is returned for vectors that cannot be L2-normalized.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch is returned when ids and vectors have different lengths.
	ErrLengthMismatch = errors.New("ids and vectors length mismatch")
	// ErrEmptyBatch is returned when Add is called without vectors.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrEmptyIndex is returned when searching an index with no entries.
	ErrEmptyIndex = errors.New("vector index is empty")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// VectorIndex defines vector storage and exact similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	Save(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Match is a single search hit: the identifier of a stored vector and its cosine similarity to the query.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// DegenerateVectorError reports a zero-norm (or non-finite) vector.
// Position is the index within the batch passed to Add, or -1 for a query vector.
type DegenerateVectorError struct {
	Position int
	ID       string
}

func (e *DegenerateVectorError) Error() string {
	if e.Position < 0 {
		return "degenerate vector: query has zero norm"
	}
	return fmt.Sprintf("degenerate vector: entry %d (%q) has zero norm", e.Position, e.ID)
}

// Unwrap lets errors.Is match ErrDegenerateVector.
func (e *DegenerateVectorError) Unwrap() error {
	return ErrDegenerateVector
}

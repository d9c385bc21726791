package indexer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath marks a path argument that is neither a file nor a directory.
	ErrInvalidPath = errors.New("invalid path")
	// ErrEmbeddingFailed marks a candidate that could not be embedded.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrNoInput is returned when a build produced no embeddings at all.
	ErrNoInput = errors.New("no images were indexed")
)

// DiagnosticKind classifies a non-fatal build problem.
type DiagnosticKind int

const (
	InvalidInput DiagnosticKind = iota
	EmbeddingFailure
)

func (k DiagnosticKind) String() string {
	if k == EmbeddingFailure {
		return "embedding_failure"
	}
	return "invalid_input"
}

// Diagnostic is a per-item problem reported by a build. The item is excluded
// and the build continues.
type Diagnostic struct {
	Kind DiagnosticKind
	Path string
	Err  error
}

func newDiagnostic(kind DiagnosticKind, path string, err error) Diagnostic {
	return Diagnostic{Kind: kind, Path: path, Err: err}
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %v", d.Kind, d.Path, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

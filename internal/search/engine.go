// Package search answers text queries against the persisted image index.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/vector"
	"go.uber.org/zap"
)

const defaultK = 5

var (
	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("query text is empty")
	// ErrIndexUnavailable wraps a missing or corrupt index file.
	ErrIndexUnavailable = errors.New("index unavailable, run `kagami index` first")
)

// Engine runs text-to-image similarity queries.
type Engine struct {
	embedder  embedding.Embedder
	indexPath string
	defaultK  int
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for query debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDefaultK sets the result count used when a query passes k == 0.
func WithDefaultK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.defaultK = k
		}
	}
}

// NewEngine creates a query engine over the index at indexPath.
func NewEngine(embedder embedding.Embedder, indexPath string, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:  embedder,
		indexPath: indexPath,
		defaultK:  defaultK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns the k images most similar to text, best first. k == 0 uses the
// default; negative k is rejected. The index is loaded before the text is
// embedded, so a missing index fails without touching the model.
func (e *Engine) Query(ctx context.Context, text string, k int) ([]vector.Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if k == 0 {
		k = e.defaultK
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: %d", vector.ErrInvalidK, k)
	}

	idx, err := vector.Load(e.indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	defer idx.Close()
	e.logger.Debug("index loaded",
		zap.String("path", e.indexPath),
		zap.Int("size", idx.Size()),
		zap.Int("dimensions", idx.Dimensions()),
	)

	queryEmbedding, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	matches, err := idx.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return matches, nil
}

// Respond runs Query and wraps the matches with ranks and timing.
func (e *Engine) Respond(ctx context.Context, text string, k int) (*models.QueryResponse, error) {
	startTime := time.Now()
	if k == 0 {
		k = e.defaultK
	}
	matches, err := e.Query(ctx, text, k)
	if err != nil {
		return nil, err
	}
	response := &models.QueryResponse{
		Query:   text,
		K:       k,
		Results: make([]*models.QueryResult, 0, len(matches)),
	}
	for i, m := range matches {
		response.Results = append(response.Results, &models.QueryResult{
			Rank:  i + 1,
			Path:  m.ID,
			Score: m.Score,
		})
	}
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

// Package indexer builds the persisted image index from file and directory arguments.
package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kagami/internal/embedding"
	"github.com/hyperjump/kagami/internal/fileid"
	"github.com/hyperjump/kagami/internal/models"
	"github.com/hyperjump/kagami/internal/storage"
	"github.com/hyperjump/kagami/internal/vector"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Builder embeds candidate images and writes a fresh index on every Build.
type Builder struct {
	embedder   embedding.Embedder
	indexPath  string
	indexType  string
	workers    int
	extensions []string
	catalog    storage.Catalog // optional
	keepBuilds int
	logger     *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for build progress and per-item warnings.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithIndexType selects the vector index implementation (see vector.NewVectorIndex).
func WithIndexType(t string) BuilderOption {
	return func(b *Builder) { b.indexType = t }
}

// WithWorkers sets how many images are embedded concurrently.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithExtensions limits directory entries to the given extensions (case-insensitive,
// with or without the leading dot). Explicit file arguments are never filtered.
func WithExtensions(exts []string) BuilderOption {
	return func(b *Builder) { b.extensions = exts }
}

// WithCatalog records every build in c.
func WithCatalog(c storage.Catalog) BuilderOption {
	return func(b *Builder) { b.catalog = c }
}

// WithKeepBuilds prunes the catalog to the newest n builds after recording (0 keeps all).
func WithKeepBuilds(n int) BuilderOption {
	return func(b *Builder) { b.keepBuilds = n }
}

// NewBuilder creates a builder that writes the index to indexPath.
func NewBuilder(embedder embedding.Embedder, indexPath string, opts ...BuilderOption) *Builder {
	b := &Builder{
		embedder:  embedder,
		indexPath: indexPath,
		indexType: string(vector.IndexTypeFlat),
		workers:   defaultWorkers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildResult summarizes a build.
type BuildResult struct {
	BuildID     string
	IndexPath   string
	Indexed     int
	Dimensions  int
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// Err combines every diagnostic into one error, nil when the build was clean.
func (r *BuildResult) Err() error {
	var err error
	for _, d := range r.Diagnostics {
		err = multierr.Append(err, d)
	}
	return err
}

type embedResult struct {
	vector []float32
	err    error
}

// Build discovers candidates in paths, embeds them and replaces the index at the
// builder's path with a new one holding every successful embedding in candidate
// order. Per-item failures are reported as diagnostics. When nothing could be
// embedded the result is returned together with ErrNoInput and no file is written.
func (b *Builder) Build(ctx context.Context, paths []string) (*BuildResult, error) {
	started := time.Now()
	res := &BuildResult{BuildID: uuid.New().String(), IndexPath: b.indexPath}

	candidates, diags := b.Discover(paths)
	for _, d := range diags {
		b.logger.Warn("skipping invalid path", zap.String("path", d.Path), zap.Error(d.Err))
	}
	b.logger.Debug("indexer candidates discovered", zap.Int("count", len(candidates)))

	slots := make([]embedResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, path := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := b.embedder.EmbedImage(gctx, path)
			if err == nil {
				// Zero or non-finite embeddings cannot be normalized.
				if _, nerr := vector.Normalize(vec); nerr != nil {
					err = nerr
				}
			}
			slots[i] = embedResult{vector: vec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(candidates))
	vectors := make([][]float32, 0, len(candidates))
	records := make([]*models.ImageRecord, 0, len(candidates))
	for i, path := range candidates {
		rec := imageRecord(path)
		if err := slots[i].err; err != nil {
			d := newDiagnostic(EmbeddingFailure, path, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err))
			diags = append(diags, d)
			b.logger.Warn("skipping image", zap.String("path", path), zap.Error(err))
			rec.Position = -1
			rec.Status = models.StatusSkipped
			rec.Reason = err.Error()
		} else {
			rec.Position = len(ids)
			rec.Status = models.StatusIndexed
			ids = append(ids, path)
			vectors = append(vectors, slots[i].vector)
		}
		records = append(records, rec)
	}
	res.Diagnostics = diags

	if len(ids) == 0 {
		res.Duration = time.Since(started)
		return res, fmt.Errorf("%w (%d candidates)", ErrNoInput, len(candidates))
	}

	idx, err := vector.NewVectorIndex(b.indexType, 0)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	if err := idx.Add(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if err := idx.Save(b.indexPath); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	res.Indexed = idx.Size()
	res.Dimensions = idx.Dimensions()
	res.Duration = time.Since(started)

	b.record(ctx, res, started, records)
	b.logger.Info("Indexed images",
		zap.Int("count", res.Indexed),
		zap.Int("skipped", len(res.Diagnostics)),
		zap.String("index_path", b.indexPath),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// record writes the build to the catalog. The index is already on disk, so
// failures are logged and not returned.
func (b *Builder) record(ctx context.Context, res *BuildResult, started time.Time, records []*models.ImageRecord) {
	if b.catalog == nil {
		return
	}
	build := &models.Build{
		ID:         res.BuildID,
		IndexPath:  res.IndexPath,
		Dimensions: res.Dimensions,
		Indexed:    res.Indexed,
		Skipped:    len(res.Diagnostics),
		StartedAt:  started,
		FinishedAt: started.Add(res.Duration),
	}
	if err := b.catalog.RecordBuild(ctx, build, records); err != nil {
		b.logger.Warn("failed to record build in catalog", zap.String("build_id", build.ID), zap.Error(err))
		return
	}
	if b.keepBuilds > 0 {
		removed, err := b.catalog.PruneBuilds(ctx, b.keepBuilds)
		if err != nil {
			b.logger.Warn("failed to prune catalog", zap.Error(err))
		} else if removed > 0 {
			b.logger.Debug("catalog pruned", zap.Int64("removed", removed))
		}
	}
}

func imageRecord(path string) *models.ImageRecord {
	rec := &models.ImageRecord{ImageID: fileid.ImageID(path), Path: path}
	if info, err := os.Stat(path); err == nil {
		rec.SizeBytes = info.Size()
		rec.ModTime = info.ModTime()
	}
	return rec
}

// Package storage defines the persistence interface for the build catalog.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kagami/internal/models"
)

// ErrNoBuilds is returned by LatestBuild when no build has been recorded.
var ErrNoBuilds = errors.New("no builds recorded")

// Catalog records index builds and the images each build saw.
type Catalog interface {
	// RecordBuild stores a build and its image records atomically.
	RecordBuild(ctx context.Context, build *models.Build, images []*models.ImageRecord) error
	LatestBuild(ctx context.Context) (*models.Build, error)
	// ListImages returns the records of a build in candidate order. An empty
	// status returns every record.
	ListImages(ctx context.Context, buildID, status string) ([]*models.ImageRecord, error)
	CountBuilds(ctx context.Context) (int64, error)
	// PruneBuilds removes all but the newest keep builds and returns how many were removed.
	PruneBuilds(ctx context.Context, keep int) (int64, error)

	Close() error
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kagami/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		index_path TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		indexed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS build_images (
		build_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		image_id TEXT NOT NULL,
		path TEXT NOT NULL,
		position INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		size_bytes INTEGER,
		mod_time TIMESTAMP,
		PRIMARY KEY (build_id, ord)
	);

	CREATE INDEX IF NOT EXISTS idx_build_images_status ON build_images(build_id, status);
	CREATE INDEX IF NOT EXISTS idx_build_images_image_id ON build_images(image_id);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordBuild inserts the build and all of its image records in a transaction.
func (s *SQLiteCatalog) RecordBuild(ctx context.Context, build *models.Build, images []*models.ImageRecord) error {
	if build == nil || build.ID == "" {
		return errors.New("build id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO builds (id, index_path, dimensions, indexed, skipped, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		build.ID, build.IndexPath, build.Dimensions, build.Indexed, build.Skipped,
		build.StartedAt.UTC(), build.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO build_images (build_id, ord, image_id, path, position, status, reason, size_bytes, mod_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, img := range images {
		if _, err := stmt.ExecContext(ctx,
			build.ID, i, img.ImageID, img.Path, img.Position, img.Status, img.Reason, img.SizeBytes, img.ModTime.UTC(),
		); err != nil {
			return fmt.Errorf("insert image record %s: %w", img.Path, err)
		}
	}
	return tx.Commit()
}

// LatestBuild returns the most recently recorded build.
func (s *SQLiteCatalog) LatestBuild(ctx context.Context) (*models.Build, error) {
	var b models.Build
	err := s.db.QueryRowContext(ctx,
		`SELECT id, index_path, dimensions, indexed, skipped, started_at, finished_at
		 FROM builds ORDER BY seq DESC LIMIT 1`,
	).Scan(&b.ID, &b.IndexPath, &b.Dimensions, &b.Indexed, &b.Skipped, &b.StartedAt, &b.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNoBuilds
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListImages returns the image records of buildID, optionally filtered by status.
func (s *SQLiteCatalog) ListImages(ctx context.Context, buildID, status string) ([]*models.ImageRecord, error) {
	query := `SELECT image_id, path, position, status, COALESCE(reason, ''), COALESCE(size_bytes, 0), mod_time
		 FROM build_images WHERE build_id = ?`
	args := []any{buildID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY ord`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.ImageRecord
	for rows.Next() {
		var img models.ImageRecord
		var modTime sql.NullTime
		if err := rows.Scan(&img.ImageID, &img.Path, &img.Position, &img.Status, &img.Reason, &img.SizeBytes, &modTime); err != nil {
			return nil, err
		}
		if modTime.Valid {
			img.ModTime = modTime.Time
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// CountBuilds returns the number of recorded builds.
func (s *SQLiteCatalog) CountBuilds(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM builds`).Scan(&count)
	return count, err
}

// PruneBuilds keeps the newest keep builds and deletes the rest with their
// image records. keep <= 0 keeps everything.
func (s *SQLiteCatalog) PruneBuilds(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM builds WHERE seq NOT IN (SELECT seq FROM builds ORDER BY seq DESC LIMIT ?)`, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	removed, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM build_images WHERE build_id NOT IN (SELECT id FROM builds)`,
	); err != nil {
		return 0, fmt.Errorf("prune image records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

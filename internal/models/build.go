// Package models defines core data structures for index builds, image records, and query responses.
package models

import "time"

// Image record statuses.
const (
	StatusIndexed = "indexed"
	StatusSkipped = "skipped"
)

// Build represents one indexing run.
type Build struct {
	ID         string    `json:"id" db:"id"`
	IndexPath  string    `json:"index_path" db:"index_path"`
	Dimensions int       `json:"dimensions" db:"dimensions"`
	Indexed    int       `json:"indexed" db:"indexed"`
	Skipped    int       `json:"skipped" db:"skipped"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// Duration returns how long the build took.
func (b *Build) Duration() time.Duration {
	return b.FinishedAt.Sub(b.StartedAt)
}

// ImageRecord is one candidate file seen by a build.
type ImageRecord struct {
	ImageID string `json:"image_id" db:"image_id"`
	Path    string `json:"path" db:"path"`
	// Position is the index position of the vector, -1 when the image was skipped.
	Position  int       `json:"position" db:"position"`
	Status    string    `json:"status" db:"status"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
	ModTime   time.Time `json:"mod_time" db:"mod_time"`
}

// Package cli provides CLI output helpers for kagami.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/kagami/internal/models"
)

// OutputFormat is the format for query and status output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one tab-separated "score path" line per result.
	OutputCompact OutputFormat = "compact"
)

// ParseOutputFormat validates s as an output format. Empty selects text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputCompact:
		return OutputCompact, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json, compact)", s)
	}
}

// WriteQueryResults writes query results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		for _, r := range response.Results {
			if _, err := fmt.Fprintf(w, "%.4f\t%s\n", r.Score, r.Path); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, r := range response.Results {
			if _, err := fmt.Fprintf(w, "Image: %s,\tScore: %.4f\n", r.Path, r.Score); err != nil {
				return err
			}
		}
		return nil
	}
}

// Status describes the persisted index and the latest recorded build.
type Status struct {
	IndexPath    string        `json:"index_path"`
	IndexExists  bool          `json:"index_exists"`
	IndexError   string        `json:"index_error,omitempty"`
	Dimensions   int           `json:"dimensions"`
	Images       int           `json:"images"`
	IndexBytes   int64         `json:"index_bytes"`
	CatalogPath  string        `json:"catalog_path,omitempty"`
	CatalogBytes int64         `json:"catalog_bytes"`
	Builds       int64         `json:"builds"`
	LatestBuild  *models.Build `json:"latest_build,omitempty"`
}

// WriteStatus writes s to w as text or JSON.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "Index:        %s\n", s.IndexPath)
	switch {
	case s.IndexError != "":
		fmt.Fprintf(w, "  state:      unreadable (%s)\n", s.IndexError)
	case !s.IndexExists:
		fmt.Fprintln(w, "  state:      not built (run `kagami index <path>...`)")
	default:
		fmt.Fprintf(w, "  images:     %d\n", s.Images)
		fmt.Fprintf(w, "  dimensions: %d\n", s.Dimensions)
		fmt.Fprintf(w, "  size:       %s\n", FormatBytes(s.IndexBytes))
	}
	if s.CatalogPath != "" {
		fmt.Fprintf(w, "Catalog:      %s (%s, %d builds)\n", s.CatalogPath, FormatBytes(s.CatalogBytes), s.Builds)
	}
	if b := s.LatestBuild; b != nil {
		fmt.Fprintf(w, "Last build:   %s at %s\n", b.ID, b.FinishedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(w, "  indexed:    %d\n", b.Indexed)
		fmt.Fprintf(w, "  skipped:    %d\n", b.Skipped)
		fmt.Fprintf(w, "  took:       %s\n", b.Duration().Round(time.Millisecond))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

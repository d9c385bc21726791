package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// PathKind classifies a path argument.
type PathKind int

const (
	PathInvalid PathKind = iota
	PathFile
	PathDirectory
)

func (k PathKind) String() string {
	switch k {
	case PathFile:
		return "file"
	case PathDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

// ResolvePath reports whether path is a regular file, a directory, or neither.
// Symlinks are followed.
func ResolvePath(path string) PathKind {
	if path == "" {
		return PathInvalid
	}
	info, err := os.Stat(path)
	if err != nil {
		return PathInvalid
	}
	switch {
	case info.Mode().IsRegular():
		return PathFile
	case info.IsDir():
		return PathDirectory
	default:
		return PathInvalid
	}
}

// Discover expands path arguments into candidate image paths, in argument order.
// Directories are listed non-recursively in lexical order and every regular file
// directly inside is a candidate; entries outside the extension allow-list are
// skipped. File arguments are candidates as given. Invalid arguments and
// unreadable directories become InvalidInput diagnostics.
func (b *Builder) Discover(paths []string) ([]string, []Diagnostic) {
	var candidates []string
	var diags []Diagnostic
	for _, p := range paths {
		switch ResolvePath(p) {
		case PathFile:
			candidates = append(candidates, p)
		case PathDirectory:
			entries, err := os.ReadDir(p)
			if err != nil {
				diags = append(diags, newDiagnostic(InvalidInput, p, fmt.Errorf("%w: read directory: %w", ErrInvalidPath, err)))
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				full := filepath.Join(p, entry.Name())
				if len(b.extensions) > 0 && !extensionAllowed(filepath.Ext(full), b.extensions) {
					continue
				}
				if ResolvePath(full) != PathFile {
					b.logger.Debug("indexer skipping non-regular entry", zap.String("path", full))
					continue
				}
				candidates = append(candidates, full)
			}
		default:
			diags = append(diags, newDiagnostic(InvalidInput, p, fmt.Errorf("%w: %q is neither a file nor a directory", ErrInvalidPath, p)))
		}
	}
	return candidates, diags
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

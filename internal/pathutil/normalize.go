package pathutil

import (
	"fmt"
	"path/filepath"
)

// Normalize returns a canonical filesystem path string.
// It removes trailing slashes, collapses "." and "..", and
// preserves relative paths when provided.
func Normalize(path string) string {
	if path == "" {
		return path
	}
	return filepath.Clean(path)
}

// Canonical resolves path to the absolute, symlink-free form used as the
// index key for a scan root. Children of the root are joined onto this value,
// so every run maps the same on-disk entry to the same key.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return Normalize(resolved), nil
}

// Parent returns the containing directory of path, or "" when path is a
// filesystem root and has no parent.
func Parent(path string) string {
	path = Normalize(path)
	parent := filepath.Dir(path)
	if parent == path {
		return ""
	}
	return parent
}

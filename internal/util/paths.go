package util

import (
	"path/filepath"
)

// CanonicalPath returns a cleaned path with symlinks resolved where
// possible. If the target cannot be resolved (e.g. it was removed),
// the cleaned literal path is returned instead.
func CanonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

package cache

import (
	"path/filepath"
	"strings"
)

// Path returns the cache file path for a blob slot. Stable: the same kind and
// name always map to the same path.
func Path(cacheDir, kind, name string) string {
	return filepath.Join(cacheDir, sanitizeID(kind), sanitizeID(name))
}

// PartialPath returns the path used while writing (renamed to Path when done).
func PartialPath(cacheDir, kind, name string) string {
	return Path(cacheDir, kind, name) + ".partial"
}

func sanitizeID(id string) string {
	s := strings.ReplaceAll(id, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "_")
	if s == ".." || s == "." {
		s = "_"
	}
	if s == "" {
		s = "unknown"
	}
	return s
}

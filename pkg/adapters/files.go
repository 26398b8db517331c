package adapters

import (
	"os"
	"path/filepath"
)

// PartialPath returns where an artifact is written before it is renamed into place.
func PartialPath(dir, name string) string {
	return filepath.Join(dir, ".partial-"+name)
}

// Commit renames the partial artifact over the final name, so readers never see a half-written file.
func Commit(dir, name string) error {
	return os.Rename(PartialPath(dir, name), filepath.Join(dir, name))
}

// Discard removes a partial artifact left by a failed attempt.
func Discard(dir, name string) {
	_ = os.Remove(PartialPath(dir, name))
}

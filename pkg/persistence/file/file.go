// Package file provides file-based persistence implementation for pipeline runs.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

const (
	runsDir    = "runs"
	eventsDir  = "events"
	activeFile = "active.json"
	stopPrefix = "stop-"
)

// Persistence implements persistence.RunStore on the local file system.
//
// Layout under root:
//
//	runs/<date>.json     one record per date, replaced atomically
//	events/<date>.jsonl  append-only transition log
//	active.json          active-run sentinel, created exclusively
//	stop-<date>-<nanos>  stop request for the acquisition made at <nanos>
type Persistence struct {
	root string
	mu   sync.Mutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

// Root returns the directory holding the store.
func (fp *Persistence) Root() string {
	return fp.root
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists and is a directory.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.root)
	if err != nil {
		return persistence.Unavailable("HealthCheck", "", err)
	}

	if !info.IsDir() {
		return persistence.Unavailable("HealthCheck", "", fmt.Errorf("%s is not a directory", fp.root))
	}

	return nil
}

// validateRunID validates that the run ID is a calendar date and therefore safe for file operations.
func validateRunID(op, runID string) error {
	if _, err := time.Parse(models.DateLayout, runID); err != nil {
		return persistence.NewRunError(op, runID, persistence.ErrInvalidRunID)
	}

	return nil
}

// writeAtomic replaces path with data through a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()

		return err
	}

	if err := tmp.Close(); err != nil {
		cleanup()

		return err
	}

	if err := os.Chmod(tmpName, 0600); err != nil {
		cleanup()

		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()

		return err
	}

	return nil
}

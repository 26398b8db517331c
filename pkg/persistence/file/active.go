package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

func (fp *Persistence) activePath() string {
	return filepath.Join(fp.root, activeFile)
}

// AcquireActive creates the sentinel exclusively, so two processes cannot both hold it.
func (fp *Persistence) AcquireActive(_ context.Context, active models.ActiveRun) error {
	if err := validateRunID("AcquireActive", active.RunID); err != nil {
		return err
	}

	data, err := json.Marshal(active)
	if err != nil {
		return persistence.NewRunError("AcquireActive", active.RunID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err = os.MkdirAll(fp.root, 0750)
	if err != nil {
		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	f, err := os.OpenFile(fp.activePath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return persistence.NewRunError("AcquireActive", active.RunID, persistence.ErrActiveRunExists)
		}

		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(fp.activePath())

		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	return nil
}

// ActiveRun returns the sentinel, or nil when no run is active.
func (fp *Persistence) ActiveRun(_ context.Context) (*models.ActiveRun, error) {
	return fp.readActive()
}

func (fp *Persistence) readActive() (*models.ActiveRun, error) {
	data, err := os.ReadFile(fp.activePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, persistence.Unavailable("ActiveRun", "", err)
	}

	var active models.ActiveRun

	err = json.Unmarshal(data, &active)
	if err != nil {
		return nil, persistence.Unavailable("ActiveRun", "", fmt.Errorf("corrupt sentinel: %w", err))
	}

	_, err = os.Stat(fp.stopPath(active))
	switch {
	case err == nil:
		active.StopRequested = true
	case !errors.Is(err, os.ErrNotExist):
		return nil, persistence.Unavailable("ActiveRun", active.RunID, err)
	}

	return &active, nil
}

// stopPath names the stop marker of one acquisition. A marker written for an
// earlier acquisition of the same date never matches a later one.
func (fp *Persistence) stopPath(active models.ActiveRun) string {
	return filepath.Join(fp.root, fmt.Sprintf("%s%s-%d", stopPrefix, active.RunID, active.AcquiredAt.UnixNano()))
}

// RequestStop flags the sentinel when runID holds it. The flag lives in a
// separate marker file; active.json is never rewritten, so a stop racing a
// release in another process cannot recreate the sentinel.
func (fp *Persistence) RequestStop(_ context.Context, runID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	active, err := fp.readActive()
	if err != nil {
		return err
	}

	if active == nil || active.RunID != runID {
		return persistence.NewRunError("RequestStop", runID, persistence.ErrRunNotActive)
	}

	f, err := os.OpenFile(fp.stopPath(*active), os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return persistence.Unavailable("RequestStop", runID, err)
	}

	if err := f.Close(); err != nil {
		return persistence.Unavailable("RequestStop", runID, err)
	}

	return nil
}

// ReleaseActive removes the sentinel when runID holds it, then its stop markers.
func (fp *Persistence) ReleaseActive(_ context.Context, runID string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	active, err := fp.readActive()
	if err != nil {
		return err
	}

	if active == nil || active.RunID != runID {
		return persistence.NewRunError("ReleaseActive", runID, persistence.ErrRunNotActive)
	}

	err = os.Remove(fp.activePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return persistence.Unavailable("ReleaseActive", runID, err)
	}

	markers, err := filepath.Glob(filepath.Join(fp.root, stopPrefix+runID+"-*"))
	if err != nil {
		return persistence.Unavailable("ReleaseActive", runID, err)
	}

	for _, marker := range markers {
		_ = os.Remove(marker)
	}

	return nil
}

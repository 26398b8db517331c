package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

func (fp *Persistence) runPath(runID string) string {
	return filepath.Join(fp.root, runsDir, runID+".json")
}

// Load retrieves the run record for a date.
func (fp *Persistence) Load(_ context.Context, date string) (*models.RunRecord, error) {
	if err := validateRunID("Load", date); err != nil {
		return nil, err
	}

	return fp.load(date)
}

func (fp *Persistence) load(date string) (*models.RunRecord, error) {
	data, err := os.ReadFile(fp.runPath(date)) // #nosec G304 -- date is validated as YYYY-MM-DD
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("Load", date, persistence.ErrRunNotFound)
		}

		return nil, persistence.Unavailable("Load", date, err)
	}

	var record models.RunRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, persistence.Unavailable("Load", date, fmt.Errorf("failed to unmarshal run %s: %w", date, err))
	}

	return &record, nil
}

// Save replaces the record for its date.
func (fp *Persistence) Save(_ context.Context, record *models.RunRecord) error {
	if err := validateRunID("Save", record.ID); err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return fp.save(record)
}

func (fp *Persistence) save(record *models.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return persistence.NewRunError("Save", record.ID, fmt.Errorf("failed to marshal run: %w", err))
	}

	err = writeAtomic(fp.runPath(record.ID), data)
	if err != nil {
		return persistence.Unavailable("Save", record.ID, err)
	}

	return nil
}

// Update performs a read-modify-write of one record under the store lock.
func (fp *Persistence) Update(_ context.Context, date string, fn persistence.UpdateFunc) (*models.RunRecord, error) {
	if err := validateRunID("Update", date); err != nil {
		return nil, err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	current, err := fp.load(date)
	if err != nil && !persistence.IsRunNotFound(err) {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		return current, nil
	}

	err = fp.save(next)
	if err != nil {
		return nil, err
	}

	return next, nil
}

// List returns records within the range, newest date first.
func (fp *Persistence) List(_ context.Context, dates models.DateRange) ([]*models.RunRecord, error) {
	entries, err := os.ReadDir(filepath.Join(fp.root, runsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.RunRecord{}, nil
		}

		return nil, persistence.Unavailable("List", "", err)
	}

	records := make([]*models.RunRecord, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		date := strings.TrimSuffix(name, ".json")
		if validateRunID("List", date) != nil || !dates.Contains(date) {
			continue
		}

		record, err := fp.load(date)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})

	return records, nil
}

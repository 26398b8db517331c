package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

func (fp *Persistence) eventsPath(runID string) string {
	return filepath.Join(fp.root, eventsDir, runID+".jsonl")
}

// AppendEvent adds one line to the run's transition log.
func (fp *Persistence) AppendEvent(_ context.Context, event models.StepEvent) error {
	if err := validateRunID("AppendEvent", event.RunID); err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return persistence.NewRunError("AppendEvent", event.RunID, fmt.Errorf("failed to marshal event: %w", err))
	}

	line = append(line, '\n')

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err = os.MkdirAll(filepath.Join(fp.root, eventsDir), 0750)
	if err != nil {
		return persistence.Unavailable("AppendEvent", event.RunID, err)
	}

	f, err := os.OpenFile(fp.eventsPath(event.RunID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return persistence.Unavailable("AppendEvent", event.RunID, err)
	}

	_, err = f.Write(line)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return persistence.Unavailable("AppendEvent", event.RunID, err)
	}

	return nil
}

// Events returns logged transitions with a sequence number above afterSeq.
func (fp *Persistence) Events(_ context.Context, runID string, afterSeq int64) ([]models.StepEvent, error) {
	if err := validateRunID("Events", runID); err != nil {
		return nil, err
	}

	f, err := os.Open(fp.eventsPath(runID)) // #nosec G304 -- runID is validated as YYYY-MM-DD
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.StepEvent{}, nil
		}

		return nil, persistence.Unavailable("Events", runID, err)
	}
	defer func() { _ = f.Close() }()

	events := []models.StepEvent{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		var event models.StepEvent

		// A torn final line from a crash is skipped.
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}

		if event.Seq > afterSeq {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, persistence.Unavailable("Events", runID, err)
	}

	return events, nil
}

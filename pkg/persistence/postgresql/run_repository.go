package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func validateRunID(op, runID string) error {
	if _, err := time.Parse(models.DateLayout, runID); err != nil {
		return persistence.NewRunError(op, runID, persistence.ErrInvalidRunID)
	}

	return nil
}

// Load retrieves the run record for a date.
func (p *Persistence) Load(ctx context.Context, date string) (*models.RunRecord, error) {
	if err := validateRunID("Load", date); err != nil {
		return nil, err
	}

	return loadRecord(ctx, p.db, "Load", date, "SELECT record FROM runs WHERE id = $1")
}

func loadRecord(ctx context.Context, q queryer, op, date, query string) (*models.RunRecord, error) {
	var payload []byte

	err := q.QueryRowContext(ctx, query, date).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError(op, date, persistence.ErrRunNotFound)
		}

		return nil, persistence.Unavailable(op, date, err)
	}

	var record models.RunRecord

	err = json.Unmarshal(payload, &record)
	if err != nil {
		return nil, persistence.Unavailable(op, date, fmt.Errorf("failed to unmarshal run: %w", err))
	}

	return &record, nil
}

// Save upserts the record for its date.
func (p *Persistence) Save(ctx context.Context, record *models.RunRecord) error {
	if err := validateRunID("Save", record.ID); err != nil {
		return err
	}

	return saveRecord(ctx, p.db, record)
}

func saveRecord(ctx context.Context, q queryer, record *models.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return persistence.NewRunError("Save", record.ID, fmt.Errorf("failed to marshal run: %w", err))
	}

	query := `
		INSERT INTO runs (id, run_date, status, mode, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			mode = EXCLUDED.mode,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`

	_, err = q.ExecContext(ctx, query,
		record.ID,
		record.Date,
		string(record.Status),
		string(record.Mode),
		payload,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return persistence.Unavailable("Save", record.ID, err)
	}

	return nil
}

// Update locks the row for the duration of fn.
func (p *Persistence) Update(ctx context.Context, date string, fn persistence.UpdateFunc) (*models.RunRecord, error) {
	if err := validateRunID("Update", date); err != nil {
		return nil, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.Unavailable("Update", date, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	current, err := loadRecord(ctx, tx, "Update", date, "SELECT record FROM runs WHERE id = $1 FOR UPDATE")
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

	err = saveRecord(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.Unavailable("Update", date, err)
	}

	return next, nil
}

// List returns records within the range, newest date first.
func (p *Persistence) List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error) {
	query := `
		SELECT record FROM runs
		WHERE ($1 = '' OR id >= $1) AND ($2 = '' OR id <= $2)
		ORDER BY run_date DESC`

	rows, err := p.db.QueryContext(ctx, query, dates.From, dates.To)
	if err != nil {
		return nil, persistence.Unavailable("List", "", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.Error("failed to close rows", "error", err)
		}
	}()

	records := []*models.RunRecord{}

	for rows.Next() {
		var payload []byte

		err := rows.Scan(&payload)
		if err != nil {
			return nil, persistence.Unavailable("List", "", err)
		}

		var record models.RunRecord

		err = json.Unmarshal(payload, &record)
		if err != nil {
			return nil, persistence.Unavailable("List", "", fmt.Errorf("failed to unmarshal run: %w", err))
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("List", "", err)
	}

	return records, nil
}

// AppendEvent inserts one transition into the run's log.
func (p *Persistence) AppendEvent(ctx context.Context, event models.StepEvent) error {
	if err := validateRunID("AppendEvent", event.RunID); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.NewRunError("AppendEvent", event.RunID, fmt.Errorf("failed to marshal event: %w", err))
	}

	_, err = p.db.ExecContext(ctx,
		"INSERT INTO run_events (run_id, seq, payload, created_at) VALUES ($1, $2, $3, $4)",
		event.RunID, event.Seq, payload, event.Timestamp)
	if err != nil {
		return persistence.Unavailable("AppendEvent", event.RunID, err)
	}

	return nil
}

// Events returns logged transitions with a sequence number above afterSeq.
func (p *Persistence) Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT payload FROM run_events WHERE run_id = $1 AND seq > $2 ORDER BY seq ASC",
		runID, afterSeq)
	if err != nil {
		return nil, persistence.Unavailable("Events", runID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.Error("failed to close rows", "error", err)
		}
	}()

	events := []models.StepEvent{}

	for rows.Next() {
		var payload []byte

		err := rows.Scan(&payload)
		if err != nil {
			return nil, persistence.Unavailable("Events", runID, err)
		}

		var event models.StepEvent

		err = json.Unmarshal(payload, &event)
		if err != nil {
			return nil, persistence.Unavailable("Events", runID, fmt.Errorf("failed to unmarshal event: %w", err))
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.Unavailable("Events", runID, err)
	}

	return events, nil
}

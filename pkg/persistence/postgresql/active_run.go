package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

// AcquireActive inserts the single sentinel row; the primary key makes a second insert a no-op.
func (p *Persistence) AcquireActive(ctx context.Context, active models.ActiveRun) error {
	if err := validateRunID("AcquireActive", active.RunID); err != nil {
		return err
	}

	result, err := p.db.ExecContext(ctx, `
		INSERT INTO active_run (singleton, run_id, owner, acquired_at, stop_requested)
		VALUES (TRUE, $1, $2, $3, FALSE)
		ON CONFLICT (singleton) DO NOTHING`,
		active.RunID, active.Owner, active.AcquiredAt)
	if err != nil {
		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Unavailable("AcquireActive", active.RunID, err)
	}

	if affected == 0 {
		return persistence.NewRunError("AcquireActive", active.RunID, persistence.ErrActiveRunExists)
	}

	return nil
}

// ActiveRun returns the sentinel, or nil when no run is active.
func (p *Persistence) ActiveRun(ctx context.Context) (*models.ActiveRun, error) {
	var active models.ActiveRun

	err := p.db.QueryRowContext(ctx,
		"SELECT run_id, owner, acquired_at, stop_requested FROM active_run WHERE singleton").
		Scan(&active.RunID, &active.Owner, &active.AcquiredAt, &active.StopRequested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.Unavailable("ActiveRun", "", err)
	}

	return &active, nil
}

// RequestStop flags the sentinel when runID holds it.
func (p *Persistence) RequestStop(ctx context.Context, runID string) error {
	return p.execOnHolder(ctx, "RequestStop", runID,
		"UPDATE active_run SET stop_requested = TRUE WHERE singleton AND run_id = $1")
}

// ReleaseActive deletes the sentinel when runID holds it.
func (p *Persistence) ReleaseActive(ctx context.Context, runID string) error {
	return p.execOnHolder(ctx, "ReleaseActive", runID,
		"DELETE FROM active_run WHERE singleton AND run_id = $1")
}

func (p *Persistence) execOnHolder(ctx context.Context, op, runID, query string) error {
	result, err := p.db.ExecContext(ctx, query, runID)
	if err != nil {
		return persistence.Unavailable(op, runID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.Unavailable(op, runID, err)
	}

	if affected == 0 {
		return persistence.NewRunError(op, runID, persistence.ErrRunNotActive)
	}

	return nil
}

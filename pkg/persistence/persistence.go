// Package persistence provides the run state store abstraction for pipeline runs.
package persistence

import (
	"context"

	"github.com/dukex/dailyreel/pkg/models"
)

// UpdateFunc mutates a record inside an atomic read-modify-write.
// It receives nil when no record exists for the date.
type UpdateFunc func(record *models.RunRecord) (*models.RunRecord, error)

// RunStore persists run records keyed by date, their transition logs and the active-run sentinel.
type RunStore interface {
	Load(ctx context.Context, date string) (*models.RunRecord, error)
	Save(ctx context.Context, record *models.RunRecord) error
	Update(ctx context.Context, date string, fn UpdateFunc) (*models.RunRecord, error)
	List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error)

	AppendEvent(ctx context.Context, event models.StepEvent) error
	Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error)

	AcquireActive(ctx context.Context, active models.ActiveRun) error
	ActiveRun(ctx context.Context) (*models.ActiveRun, error)
	RequestStop(ctx context.Context, runID string) error
	ReleaseActive(ctx context.Context, runID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

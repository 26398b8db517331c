// Package schedule starts the daily run from a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// Starter is the part of the orchestrator the scheduler drives.
type Starter interface {
	StartRun(ctx context.Context, date string, mode models.RunMode) (string, error)
}

type Scheduler struct {
	CronExpr string
	Mode     models.RunMode

	starter  Starter
	schedule cron.Schedule
	location *time.Location
	clock    clockwork.Clock
	cron     *cron.Cron
	logger   *slog.Logger
}

func New(starter Starter, cronExpr string, mode models.RunMode, loc *time.Location, clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Scheduler{
		CronExpr: cronExpr,
		Mode:     mode,
		starter:  starter,
		location: loc,
		clock:    clock,
		logger: logger.With(
			"module", "schedule",
			"cron", cronExpr,
			"mode", mode,
		),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Validate() error {
	if s.starter == nil {
		return errors.New("schedule requires a starter")
	}

	if s.CronExpr == "" {
		return errors.New("schedule cron expression is required")
	}

	if !s.Mode.Valid() {
		return fmt.Errorf("invalid schedule mode %q", s.Mode)
	}

	schedule, err := cron.ParseStandard(s.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.schedule = schedule

	return nil
}

// Start registers the cron job. The job runs in the scheduler's time zone.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting schedule", "location", s.location.String())

	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)

	id, err := s.cron.AddFunc(s.CronExpr, func() {
		s.Trigger(context.WithoutCancel(ctx))
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.logger.InfoContext(ctx, "Added cron job", "id", id, "next", s.Next())
	s.cron.Start()

	return nil
}

// Trigger starts the run for today's date. A run already in progress is
// logged and left alone.
func (s *Scheduler) Trigger(ctx context.Context) (string, error) {
	date := s.clock.Now().In(s.location).Format(models.DateLayout)

	s.logger.InfoContext(ctx, "Schedule triggered", "date", date)

	runID, err := s.starter.StartRun(ctx, date, s.Mode)
	if err != nil {
		if pipeline.IsAlreadyRunning(err) {
			s.logger.WarnContext(ctx, "Skipping scheduled run, another run is active", "date", date)
			return "", nil
		}

		s.logger.ErrorContext(ctx, "Scheduled run failed to start", "date", date, "error", err)

		return "", err
	}

	return runID, nil
}

// Next returns the next activation after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.clock.Now().In(s.location))
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping schedule")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

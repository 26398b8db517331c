// Package pipeline sequences the daily video steps, persists every transition
// and exposes the run lifecycle to the control surfaces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/eventbus"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/otelhelper"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator runs at most one pipeline at a time.
type Orchestrator struct {
	store     persistence.RunStore
	adapters  adapters.Set
	cfg       Config
	workspace workspace
	clock     clockwork.Clock
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
	owner     string
	hub       *hub

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	active   *activeRun
	shutdown bool
}

// activeRun is the in-process state of the running record. Only its goroutine mutates record.
type activeRun struct {
	id     string
	mode   models.RunMode
	dir    string
	stop   atomic.Bool
	done   chan struct{}
	mu     sync.Mutex
	record *models.RunRecord
}

type Option func(*Orchestrator)

func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithPublisher mirrors every transition onto an event bus, best effort.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithOwner sets the name recorded on the active-run sentinel.
func WithOwner(owner string) Option {
	return func(o *Orchestrator) {
		o.owner = owner
	}
}

func New(store persistence.RunStore, set adapters.Set, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()

	o := &Orchestrator{
		store:     store,
		adapters:  set,
		cfg:       cfg,
		workspace: workspace{root: cfg.OutputRoot},
		clock:     clockwork.NewRealClock(),
		tracer:    otelhelper.NoopTracer(),
		logger:    slog.Default(),
		hub:       newHub(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.owner == "" {
		host, _ := os.Hostname()
		o.owner = fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
	}

	o.logger = o.logger.With("module", "pipeline")
	o.baseCtx, o.cancel = context.WithCancel(context.Background())

	return o
}

// StartRun validates the request, claims the active-run sentinel and starts
// executing in the background. It returns the run ID, which is the date.
func (o *Orchestrator) StartRun(ctx context.Context, date string, mode models.RunMode) (string, error) {
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	err := o.validateDate(date)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.shutdown {
		return "", ErrShuttingDown
	}

	if o.active != nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, o.active.id)
	}

	now := o.clock.Now().UTC()

	err = o.store.AcquireActive(ctx, models.ActiveRun{RunID: date, Owner: o.owner, AcquiredAt: now})
	if err != nil {
		if persistence.IsActiveRunExists(err) {
			return "", ErrAlreadyRunning
		}

		return "", err
	}

	dir, err := o.workspace.ensure(date)
	if err != nil {
		o.release(ctx, date)

		return "", persistence.Unavailable("StartRun", date, err)
	}

	record, err := o.store.Update(ctx, date, func(existing *models.RunRecord) (*models.RunRecord, error) {
		return o.prepare(ctx, existing, date, mode, dir, now), nil
	})
	if err != nil {
		o.release(ctx, date)

		return "", err
	}

	ar := &activeRun{id: date, mode: mode, dir: dir, done: make(chan struct{}), record: record}

	resumed := record.SucceededPrefix()
	message := "run started"

	if resumed > 0 {
		message = fmt.Sprintf("run resumed after %d succeeded step(s)", resumed)
	}

	err = o.commit(ctx, ar, models.StepEvent{Kind: models.StepEventRun, Message: message}, nil)
	if err != nil {
		o.release(ctx, date)

		return "", err
	}

	o.active = ar
	o.wg.Add(1)

	go o.execute(ar)

	o.logger.InfoContext(ctx, "Run started", "run_id", date, "mode", mode, "attempts", record.Attempts, "resumed_steps", resumed)

	return date, nil
}

// Today returns the current date in the configured time zone.
func (o *Orchestrator) Today() string {
	return o.clock.Now().In(o.cfg.Location).Format(models.DateLayout)
}

func (o *Orchestrator) validateDate(date string) error {
	day, err := models.ParseRunDate(date, o.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: %q must use YYYY-MM-DD", ErrInvalidDate, date)
	}

	now := o.clock.Now().In(o.cfg.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, o.cfg.Location)

	if day.After(today.AddDate(0, 0, o.cfg.HorizonDays)) {
		return fmt.Errorf("%w: %s is more than %d day(s) ahead", ErrInvalidDate, date, o.cfg.HorizonDays)
	}

	return nil
}

// prepare builds the record for a new attempt. Succeeded steps are kept only
// while their artifacts are still on disk; everything after is discarded.
func (o *Orchestrator) prepare(ctx context.Context, existing *models.RunRecord, date string, mode models.RunMode, dir string, now time.Time) *models.RunRecord {
	record := existing.Clone()
	if record == nil {
		record = &models.RunRecord{
			ID:        date,
			Date:      date,
			CreatedAt: now,
		}
	}

	keep := 0

	for _, step := range record.Steps[:record.SucceededPrefix()] {
		if err := verify(dir, step.Step); err != nil {
			o.logger.WarnContext(ctx, "Artifact missing, step will run again", "run_id", date, "step", step.Step, "error", err)

			break
		}

		keep++
	}

	record.Steps = record.Steps[:keep]
	record.Mode = mode
	record.Status = models.RunStatusRunning
	record.OutputDir = dir
	record.Attempts++
	record.FailedStep = ""
	record.Error = ""
	record.FinishedAt = nil
	record.UpdatedAt = now

	return record
}

func (o *Orchestrator) release(ctx context.Context, runID string) {
	err := o.store.ReleaseActive(ctx, runID)
	if err != nil && !persistence.IsRunNotActive(err) {
		o.logger.ErrorContext(ctx, "Failed to release active run", "run_id", runID, "error", err)
	}
}

// StopRun asks the run to halt at the next step boundary. Stopping a finished run is a no-op.
func (o *Orchestrator) StopRun(ctx context.Context, runID string) error {
	record, err := o.Status(ctx, runID)
	if err != nil {
		return err
	}

	if record.Status.IsTerminal() {
		return nil
	}

	local := false

	o.mu.Lock()
	if o.active != nil && o.active.id == runID {
		o.active.stop.Store(true)
		local = true
	}
	o.mu.Unlock()

	err = o.store.RequestStop(ctx, runID)
	if err != nil {
		if !persistence.IsRunNotActive(err) {
			return err
		}

		if !local {
			o.logger.WarnContext(ctx, "Run is not held by any process", "run_id", runID)
		}
	}

	o.logger.InfoContext(ctx, "Stop requested", "run_id", runID)

	return nil
}

// Status returns a snapshot of the run record.
func (o *Orchestrator) Status(ctx context.Context, runID string) (*models.RunRecord, error) {
	if _, err := models.ParseRunDate(runID, o.cfg.Location); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	record, err := o.store.Load(ctx, runID)
	if err != nil {
		if persistence.IsRunNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}

		return nil, err
	}

	return record, nil
}

// List returns run history newest first.
func (o *Orchestrator) List(ctx context.Context, dates models.DateRange) ([]*models.RunRecord, error) {
	for _, bound := range []string{dates.From, dates.To} {
		if bound == "" {
			continue
		}

		if _, err := models.ParseRunDate(bound, o.cfg.Location); err != nil {
			return nil, fmt.Errorf("%w: %q must use YYYY-MM-DD", ErrInvalidDate, bound)
		}
	}

	return o.store.List(ctx, dates)
}

// Active returns the record currently holding the sentinel.
func (o *Orchestrator) Active(ctx context.Context) (*models.RunRecord, error) {
	active, err := o.store.ActiveRun(ctx)
	if err != nil {
		return nil, err
	}

	if active == nil {
		return nil, fmt.Errorf("%w: no active run", ErrNotFound)
	}

	return o.Status(ctx, active.RunID)
}

// Events replays the transition log after afterSeq.
func (o *Orchestrator) Events(ctx context.Context, runID string, afterSeq int64) ([]models.StepEvent, error) {
	if _, err := o.Status(ctx, runID); err != nil {
		return nil, err
	}

	return o.store.Events(ctx, runID, afterSeq)
}

// Bundle lists the artifacts stored for the run.
func (o *Orchestrator) Bundle(ctx context.Context, runID string) (*models.OutputBundle, error) {
	record, err := o.Status(ctx, runID)
	if err != nil {
		return nil, err
	}

	dir := record.OutputDir
	if dir == "" {
		dir = o.workspace.dir(runID)
	}

	bundle, err := listBundle(runID, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle: %w", err)
	}

	return bundle, nil
}

// BundleFile resolves one artifact of the run to its path on disk.
func (o *Orchestrator) BundleFile(ctx context.Context, runID, name string) (string, error) {
	bundle, err := o.Bundle(ctx, runID)
	if err != nil {
		return "", err
	}

	if filepath.Base(name) != name || strings.HasPrefix(name, ".") || !bundle.Has(name) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, runID, name)
	}

	return bundlePath(bundle.Dir, name), nil
}

// Wait blocks until the run is terminal and returns its final record.
func (o *Orchestrator) Wait(ctx context.Context, runID string) (*models.RunRecord, error) {
	for {
		o.mu.Lock()
		ar := o.active
		o.mu.Unlock()

		local := ar != nil && ar.id == runID
		if local {
			select {
			case <-ar.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		record, err := o.Status(ctx, runID)
		if err != nil {
			return nil, err
		}

		// A local run that ended without persisting its result will not progress further.
		if local || record.Status.IsTerminal() {
			return record, nil
		}

		select {
		case <-o.clock.After(o.cfg.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Recover fails records left running by a crashed process and frees the sentinel.
// It must only be called when no other process is executing runs.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	localID := ""
	if o.active != nil {
		localID = o.active.id
	}

	records, err := o.store.List(ctx, models.DateRange{})
	if err != nil {
		return 0, err
	}

	recovered := 0

	for _, record := range records {
		if record.Status.IsTerminal() || record.ID == localID {
			continue
		}

		err := o.interrupt(ctx, record)
		if err != nil {
			return recovered, err
		}

		recovered++

		o.logger.WarnContext(ctx, "Recovered interrupted run", "run_id", record.ID, "step", record.FailedStep)
	}

	active, err := o.store.ActiveRun(ctx)
	if err != nil {
		return recovered, err
	}

	if active != nil && active.RunID != localID {
		o.release(ctx, active.RunID)
	}

	return recovered, nil
}

func (o *Orchestrator) interrupt(ctx context.Context, record *models.RunRecord) error {
	now := o.clock.Now().UTC()
	summary := CodeInterrupted + ": run was interrupted before completion"

	record.Status = models.RunStatusFailed
	record.FailedStep = record.CurrentStep()
	record.Error = summary
	record.FinishedAt = &now
	record.UpdatedAt = now
	record.LastSeq++

	if n := len(record.Steps); n > 0 && !record.Steps[n-1].Done() && record.Steps[n-1].Status != models.StepStatusFailed {
		last := &record.Steps[n-1]
		last.Status = models.StepStatusFailed
		last.FinishedAt = &now
		last.Error = summary
		last.ErrorKind = models.ErrorKindTransient
		last.ErrorCode = CodeInterrupted
	}

	err := o.store.Save(ctx, record)
	if err != nil {
		return err
	}

	return o.store.AppendEvent(ctx, models.StepEvent{
		Seq:       record.LastSeq,
		RunID:     record.ID,
		Kind:      models.StepEventRun,
		RunStatus: record.Status,
		Message:   summary,
		Record:    record.Clone(),
		Timestamp: now,
	})
}

// Shutdown stops the active run at its next checkpoint and waits for it.
// When ctx expires first the in-flight step is cancelled.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.shutdown = true

	if o.active != nil {
		o.active.stop.Store(true)
	}
	o.mu.Unlock()

	done := make(chan struct{})

	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()

		return nil
	case <-ctx.Done():
		o.cancel()
		<-done

		return ctx.Err()
	}
}

func (o *Orchestrator) HealthCheck(ctx context.Context) error {
	return o.store.HealthCheck(ctx)
}

// Subscribe streams the run's snapshot followed by its transitions until it is terminal.
func (o *Orchestrator) Subscribe(ctx context.Context, runID string) (*Subscription, error) {
	o.mu.Lock()
	ar := o.active
	o.mu.Unlock()

	var sub *Subscription

	if ar != nil && ar.id == runID {
		ar.mu.Lock()
		sub = o.hub.subscribe(runID, snapshotEvent(ar.record, o.clock.Now().UTC()))
		ar.mu.Unlock()
	} else {
		record, err := o.Status(ctx, runID)
		if err != nil {
			return nil, err
		}

		sub = o.hub.subscribe(runID, snapshotEvent(record, o.clock.Now().UTC()))

		if !record.Status.IsTerminal() {
			go o.tail(ctx, sub, record.LastSeq)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// tail follows a run owned by another process through the store's event log.
func (o *Orchestrator) tail(ctx context.Context, sub *Subscription, afterSeq int64) {
	o.hub.remove(sub)

	for {
		select {
		case <-o.clock.After(o.cfg.PollInterval):
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}

		events, err := o.store.Events(ctx, sub.runID, afterSeq)
		if err != nil {
			o.logger.WarnContext(ctx, "Failed to read run events", "run_id", sub.runID, "error", err)

			continue
		}

		for _, event := range events {
			afterSeq = event.Seq
			sub.enqueue(event)

			if event.Terminal() {
				return
			}
		}
	}
}

func snapshotEvent(record *models.RunRecord, now time.Time) models.StepEvent {
	return models.StepEvent{
		Seq:       record.LastSeq,
		RunID:     record.ID,
		Kind:      models.StepEventSnapshot,
		Step:      record.CurrentStep(),
		RunStatus: record.Status,
		Record:    record.Clone(),
		Timestamp: now,
	}
}

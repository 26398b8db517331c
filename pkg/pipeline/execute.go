package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/dailyreel/pkg/events"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

const alertTimeout = 30 * time.Second

// outcome is how a run left the step loop.
type outcome struct {
	status     models.RunStatus
	failedStep models.StepName
	summary    string
}

func (o *Orchestrator) execute(ar *activeRun) {
	defer o.wg.Done()

	ctx, span := otelhelper.StartSpan(o.baseCtx, o.tracer, "pipeline.run",
		attribute.String(otelhelper.RunIDKey, ar.id),
		attribute.String(otelhelper.RunModeKey, string(ar.mode)),
	)
	defer span.End()

	result := o.runSteps(ctx, ar)
	if result.status == models.RunStatusSucceeded && ar.mode == models.RunModeFull {
		o.publishShort(ctx, ar)
	}

	if result.status == models.RunStatusFailed {
		otelhelper.SetError(span, otelhelper.RunFailedEvent, errors.New(result.summary), attribute.String(otelhelper.StepNameKey, string(result.failedStep)))
	}

	o.finish(ctx, ar, result)
}

func (o *Orchestrator) runSteps(ctx context.Context, ar *activeRun) outcome {
	for i, step := range models.Steps {
		if i < len(ar.record.Steps) && ar.record.Steps[i].Status == models.StepStatusSucceeded {
			continue
		}

		if o.stopRequested(ctx, ar) {
			o.logger.InfoContext(ctx, "Run stopped", "run_id", ar.id, "before_step", step)

			return outcome{status: models.RunStatusStopped, summary: "stopped before " + string(step)}
		}

		if ar.mode == models.RunModeDryRun && step.Publishing() {
			err := o.skip(ctx, ar, step, "dry run")
			if err != nil {
				return o.storeFailure(step, err)
			}

			continue
		}

		err := o.runStep(ctx, ar, step)
		if err == nil {
			continue
		}

		kind := Classify(err)
		if kind == models.ErrorKindStore {
			return o.storeFailure(step, err)
		}

		if step == models.StepCrossPost {
			o.logger.WarnContext(ctx, "Cross-post failed, run continues", "run_id", ar.id, "error", err)

			continue
		}

		for _, rest := range models.Steps[i+1:] {
			if skipErr := o.skip(ctx, ar, rest, string(step)+" failed"); skipErr != nil {
				return o.storeFailure(rest, skipErr)
			}
		}

		return outcome{status: models.RunStatusFailed, failedStep: step, summary: Summary(err)}
	}

	return outcome{status: models.RunStatusSucceeded}
}

func (o *Orchestrator) storeFailure(step models.StepName, err error) outcome {
	return outcome{status: models.RunStatusFailed, failedStep: step, summary: Summary(err)}
}

// stopRequested is the checkpoint between steps. It honours stops issued by
// this process and, through the sentinel, by any other.
func (o *Orchestrator) stopRequested(ctx context.Context, ar *activeRun) bool {
	if ar.stop.Load() {
		return true
	}

	active, err := o.store.ActiveRun(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to read active run", "run_id", ar.id, "error", err)

		return false
	}

	return active != nil && active.RunID == ar.id && active.StopRequested
}

func (o *Orchestrator) skip(ctx context.Context, ar *activeRun, step models.StepName, reason string) error {
	now := o.clock.Now().UTC()
	result := models.StepResult{
		Step:       step,
		Status:     models.StepStatusSkipped,
		StartedAt:  &now,
		FinishedAt: &now,
	}

	return o.commitStep(ctx, ar, result, "skipped: "+reason)
}

// runStep executes one step with retries. The returned error is the last attempt's failure.
func (o *Orchestrator) runStep(ctx context.Context, ar *activeRun, step models.StepName) error {
	started := o.clock.Now().UTC()
	result := models.StepResult{Step: step, StartedAt: &started}
	delays := o.cfg.newBackOff()
	logger := o.logger.With("run_id", ar.id, "step", step)

	for attempt := 1; ; attempt++ {
		result.Status = models.StepStatusRunning
		result.AttemptCount = attempt

		err := o.commitStep(ctx, ar, result, fmt.Sprintf("attempt %d", attempt))
		if err != nil {
			return err
		}

		logger.InfoContext(ctx, "Step started", "attempt", attempt)

		ref, err := o.attempt(ctx, ar, step, attempt)
		now := o.clock.Now().UTC()

		if err == nil {
			result.Status = models.StepStatusSucceeded
			result.FinishedAt = &now
			result.OutputRef = ref

			logger.InfoContext(ctx, "Step succeeded", "attempt", attempt, "output_ref", ref)

			return o.commitStep(ctx, ar, result, "succeeded")
		}

		kind := Classify(err)
		summary := Summary(err)

		if kind == models.ErrorKindStore {
			logger.ErrorContext(ctx, "Run store failed during step", "attempt", attempt, "error", err)

			return err
		}

		if kind == models.ErrorKindTransient && attempt < o.cfg.MaxAttempts {
			delay := delays.NextBackOff()
			if delay == backoff.Stop {
				delay = o.cfg.Backoff.Max
			}

			logger.WarnContext(ctx, "Step failed, retrying", "attempt", attempt, "delay", delay, "error", err)

			result.Status = models.StepStatusRetried

			commitErr := o.commitStep(ctx, ar, result, summary)
			if commitErr != nil {
				return commitErr
			}

			if waitErr := o.sleep(ctx, delay); waitErr != nil {
				err = waitErr
			} else {
				continue
			}
		}

		if step == models.StepCrossPost {
			kind = models.ErrorKindNonFatal
		}

		logger.ErrorContext(ctx, "Step failed", "attempt", attempt, "kind", kind, "error", err)

		result.Status = models.StepStatusFailed
		result.FinishedAt = &now
		result.Error = summary
		result.ErrorKind = kind
		result.ErrorCode = ErrorCode(err)

		commitErr := o.commitStep(ctx, ar, result, summary)
		if commitErr != nil {
			return commitErr
		}

		return err
	}
}

// attempt runs a single adapter call under the step timeout.
func (o *Orchestrator) attempt(ctx context.Context, ar *activeRun, step models.StepName, attempt int) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "pipeline.step."+string(step),
		attribute.String(otelhelper.RunIDKey, ar.id),
		attribute.String(otelhelper.StepNameKey, string(step)),
		attribute.Int(otelhelper.StepAttemptKey, attempt),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.timeout(step))
	defer cancel()

	ref, err := o.invokeStep(ctx, step, stepInput{date: ar.id, dir: ar.dir})
	if err != nil {
		otelhelper.SetError(span, otelhelper.AttemptFailedEvent, err, attribute.String(otelhelper.ErrorCodeKey, ErrorCode(err)))
	}

	return ref, err
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-o.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish records the terminal state, frees the sentinel, then alerts on a failed
// full run or reports a succeeded one.
func (o *Orchestrator) finish(ctx context.Context, ar *activeRun, result outcome) {
	ctx = context.WithoutCancel(ctx)
	now := o.clock.Now().UTC()
	event := models.StepEvent{Kind: models.StepEventRun, Message: result.summary}

	err := o.commit(ctx, ar, event, func(record *models.RunRecord) {
		record.Status = result.status
		record.FailedStep = result.failedStep
		record.Error = result.summary
		record.FinishedAt = &now

		if result.status != models.RunStatusFailed {
			record.Error = ""
		}
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to persist run result", "run_id", ar.id, "status", result.status, "error", err)

		// Subscribers still need their terminal event.
		ar.mu.Lock()
		o.hub.publish(o.stamp(ar.record, event, now))
		ar.mu.Unlock()
	}

	o.release(ctx, ar.id)

	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "Run finished", "run_id", ar.id, "status", result.status, "failed_step", result.failedStep)

	if ar.mode == models.RunModeFull {
		switch result.status {
		case models.RunStatusFailed:
			o.alert(ctx, ar.id, result)
		case models.RunStatusSucceeded:
			o.report(ctx, ar)
		}
	}

	close(ar.done)
}

func (o *Orchestrator) alert(ctx context.Context, runID string, result outcome) {
	if o.adapters.Alerter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	message := fmt.Sprintf("Step %s failed: %s", result.failedStep, result.summary)

	err := o.adapters.Alerter.Alert(ctx, runID, message)
	if err != nil {
		o.logger.WarnContext(ctx, "Failure alert not delivered", "run_id", runID, "error", err)
	}
}

// commitStep stores result as the step's current state.
func (o *Orchestrator) commitStep(ctx context.Context, ar *activeRun, result models.StepResult, message string) error {
	event := models.StepEvent{
		Kind:    models.StepEventStep,
		Step:    result.Step,
		Status:  result.Status,
		Attempt: result.AttemptCount,
		Message: message,
	}

	return o.commit(ctx, ar, event, func(record *models.RunRecord) {
		n := len(record.Steps)
		if n > 0 && record.Steps[n-1].Step == result.Step {
			record.Steps[n-1] = result.Clone()
		} else {
			record.Steps = append(record.Steps, result.Clone())
		}
	})
}

// commit applies mutate and makes the transition visible: the record is saved,
// the event appended to the log, then delivered to subscribers and the bus.
func (o *Orchestrator) commit(ctx context.Context, ar *activeRun, event models.StepEvent, mutate func(*models.RunRecord)) error {
	ar.mu.Lock()

	now := o.clock.Now().UTC()
	record := ar.record

	if mutate != nil {
		mutate(record)
	}

	record.LastSeq++
	record.UpdatedAt = now
	event = o.stamp(record, event, now)

	if event.Step != "" {
		if result, ok := record.Step(event.Step); ok {
			event.Result = &result
		}
	}

	err := o.store.Save(ctx, record)
	if err == nil {
		err = o.store.AppendEvent(ctx, event)
	}

	if err == nil {
		o.hub.publish(event)
	}

	ar.mu.Unlock()

	if err != nil {
		return err
	}

	o.publishExternal(ctx, event)

	return nil
}

func (o *Orchestrator) stamp(record *models.RunRecord, event models.StepEvent, now time.Time) models.StepEvent {
	event.Seq = record.LastSeq
	event.RunID = record.ID
	event.RunStatus = record.Status
	event.Timestamp = now

	if event.Kind != models.StepEventStep {
		event.Record = record.Clone()
	}

	return event
}

func (o *Orchestrator) publishExternal(ctx context.Context, event models.StepEvent) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(ctx, events.FromStepEvent(o.publisher.GenerateID(), event))
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish run event", "run_id", event.RunID, "seq", event.Seq, "error", err)
	}
}

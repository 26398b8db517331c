package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dukex/dailyreel/pkg/config"
	"github.com/dukex/dailyreel/pkg/eventbus"
	"github.com/dukex/dailyreel/pkg/otelhelper"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/jonboulle/clockwork"
)

// Options are the process-level settings shared by the binaries.
type Options struct {
	ConfigPath   string
	DatabaseURL  string
	OutputDir    string
	EventBus     string
	KafkaBrokers string
	Tracing      bool
	ServiceName  string
}

// Runtime holds everything an orchestrator needs and closes it in order.
type Runtime struct {
	Config       *config.Config
	Store        persistence.RunStore
	EventBus     eventbus.EventBus
	Orchestrator *pipeline.Orchestrator

	tracer *otelhelper.Provider
	logger *slog.Logger
}

// Bootstrap loads the configuration and opens the store, event bus and
// tracer before building the orchestrator. On error everything opened so far is closed.
func Bootstrap(ctx context.Context, logger *slog.Logger, opts Options) (rt *Runtime, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	rt = &Runtime{Config: cfg, logger: logger}

	defer func() {
		if err != nil {
			rt.Close(context.WithoutCancel(ctx))
		}
	}()

	databaseURL := opts.DatabaseURL
	if databaseURL == "" {
		databaseURL = filepath.Join(cfg.OutputDir, ".state")
	}

	rt.Store, err = NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return rt, err
	}

	rt.EventBus, err = NewEventBus(opts.EventBus, opts.KafkaBrokers, logger)
	if err != nil {
		return rt, err
	}

	clock := clockwork.NewRealClock()

	set, err := NewAdapters(cfg, clock, logger)
	if err != nil {
		return rt, err
	}

	pc, err := PipelineConfig(cfg)
	if err != nil {
		return rt, err
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithClock(clock),
		pipeline.WithLogger(logger),
	}

	if rt.EventBus != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(rt.EventBus))
	}

	if opts.Tracing {
		serviceName := opts.ServiceName
		if serviceName == "" {
			serviceName = "dailyreel"
		}

		rt.tracer, err = otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return rt, fmt.Errorf("failed to initialize tracing: %w", err)
		}

		pipelineOpts = append(pipelineOpts, pipeline.WithTracer(rt.tracer.Tracer("dailyreel/pipeline")))
	}

	rt.Orchestrator = pipeline.New(rt.Store, set, pc, pipelineOpts...)

	return rt, nil
}

// Close stops the orchestrator and releases the resources in reverse order of opening.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	if r.Orchestrator != nil {
		if err := r.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator shutdown: %w", err))
		}
	}

	if r.tracer != nil {
		if err := r.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}

	if r.EventBus != nil {
		if err := r.EventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus close: %w", err))
		}
	}

	if r.Store != nil {
		if err := r.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
	}

	return err
}

// Package main runs the DailyReel HTTP API and the daily schedule.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/dailyreel/pkg/cmd"
	"github.com/dukex/dailyreel/pkg/log"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	root := &cli.Command{
		Name:                  "dailyreel-api",
		Usage:                 "Serve the pipeline control API and run the daily schedule",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("DAILYREEL_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Run store URL (file path, postgres:// or redis://). Defaults to <output-dir>/.state",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Usage:   "Directory holding the per-date output bundles",
				Sources: cli.EnvVars("OUTPUT_DIR"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "External event bus for run events (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "kafka:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "schedule",
				Usage:   "Start the configured daily run on its cron schedule",
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))
	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing DailyReel API")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cmd.Bootstrap(ctx, logger, cmd.Options{
		ConfigPath:   command.String("config"),
		DatabaseURL:  command.String("database-url"),
		OutputDir:    command.String("output-dir"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Tracing:      command.Bool("otel"),
		ServiceName:  "dailyreel-api",
	})
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = rt.Close(shutdownCtx)
	}()

	recovered, err := rt.Orchestrator.Recover(ctx)
	if err != nil {
		return err
	}

	if recovered > 0 {
		logger.WarnContext(ctx, "Marked interrupted runs as failed", "count", recovered)
	}

	if command.Bool("schedule") {
		loc, err := rt.Config.Location()
		if err != nil {
			return err
		}

		scheduler, err := schedule.New(
			rt.Orchestrator,
			rt.Config.Schedule.Cron,
			models.RunMode(rt.Config.Schedule.Mode),
			loc,
			nil,
			logger,
		)
		if err != nil {
			return err
		}

		err = scheduler.Start(ctx)
		if err != nil {
			return err
		}

		defer func() {
			_ = scheduler.Stop(context.WithoutCancel(ctx))
		}()
	}

	app := NewAPI(logger, rt.Orchestrator).App()
	listenErr := make(chan error, 1)

	go func() {
		listenErr <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			logger.ErrorContext(ctx, "API server stopped", "error", err)
		}

		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Shutting down DailyReel API")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err = app.ShutdownWithContext(shutdownCtx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return nil
}

// Package main is the DailyReel command line: run the pipeline in-process and
// inspect or control runs through the shared run store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/dailyreel/pkg/cmd"
	"github.com/dukex/dailyreel/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const closeTimeout = 30 * time.Second

func main() {
	root := &cli.Command{
		Name:                  "dailyreel",
		Usage:                 "Produce and publish the daily news video",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewStatusCommand(),
			NewListCommand(),
			NewBundleCommand(),
			NewEventsCommand(),
			NewStopCommand(),
			NewRecoverCommand(),
			NewWatchCommand(),
		},
	}

	err := root.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withRuntime bootstraps the store and orchestrator for one command and
// closes them when fn returns.
func withRuntime(ctx context.Context, command *cli.Command, fn func(rt *cmd.Runtime) error) error {
	logger := log.WithModule("cli")

	rt, err := cmd.Bootstrap(ctx, logger, cmd.Options{
		ConfigPath:   command.String("config"),
		DatabaseURL:  command.String("database-url"),
		OutputDir:    command.String("output-dir"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Tracing:      command.Bool("otel"),
		ServiceName:  "dailyreel",
	})
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()

		_ = rt.Close(closeCtx)
	}()

	return fn(rt)
}

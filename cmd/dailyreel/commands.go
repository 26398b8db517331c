package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/dailyreel/pkg/cmd"
	"github.com/dukex/dailyreel/pkg/eventbus"
	"github.com/dukex/dailyreel/pkg/events"
	"github.com/dukex/dailyreel/pkg/log"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/urfave/cli/v3"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of text",
	}
}

func runIDArg(command *cli.Command) (string, error) {
	id := command.Args().First()
	if id == "" {
		return "", errors.New("a run id (YYYY-MM-DD) is required")
	}

	return id, nil
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the pipeline for a date in this process and stream its progress",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "date",
				Usage: "Run date (YYYY-MM-DD), defaults to today in the configured timezone",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Run mode (dry_run, full)",
				Value: string(models.RunModeFull),
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Shorthand for --mode dry_run",
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				mode := models.RunMode(command.String("mode"))
				if command.Bool("dry-run") {
					mode = models.RunModeDryRun
				}

				date := command.String("date")
				if date == "" {
					date = rt.Orchestrator.Today()
				}

				return runPipeline(ctx, rt.Orchestrator, date, mode, newPrinter(command))
			})
		},
	}
}

// runPipeline starts the run and follows it until it is terminal. The first
// interrupt asks the run to stop after the current step; a second one aborts.
func runPipeline(ctx context.Context, o *pipeline.Orchestrator, date string, mode models.RunMode, p *printer) error {
	runID, err := o.StartRun(ctx, date, mode)
	if err != nil {
		return err
	}

	sub, err := o.Subscribe(ctx, runID)
	if err != nil {
		return err
	}
	defer sub.Close()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	stopping := false

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return finalStatus(ctx, o, runID, p)
			}

			p.event(event)
		case <-signals:
			if stopping {
				abort, cancel := context.WithCancel(ctx)
				cancel()

				_ = o.Shutdown(abort)

				return errors.New("aborted")
			}

			stopping = true

			p.line("Stopping after the current step, interrupt again to abort")

			if err := o.StopRun(ctx, runID); err != nil {
				return err
			}
		}
	}
}

func finalStatus(ctx context.Context, o *pipeline.Orchestrator, runID string, p *printer) error {
	record, err := o.Wait(ctx, runID)
	if err != nil {
		return err
	}

	p.record(record)

	switch record.Status {
	case models.RunStatusSucceeded:
		return nil
	case models.RunStatusStopped:
		return cli.Exit("run stopped", 3)
	default:
		return cli.Exit(fmt.Sprintf("run %s: %s", record.Status, record.Error), 2)
	}
}

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the record of a run",
		ArgsUsage: "<run-id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := runIDArg(command)
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				record, err := rt.Orchestrator.Status(ctx, id)
				if err != nil {
					return err
				}

				newPrinter(command).record(record)

				return nil
			})
		},
	}
}

func NewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First date to include (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "to", Usage: "Last date to include (YYYY-MM-DD)"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				records, err := rt.Orchestrator.List(ctx, models.DateRange{
					From: command.String("from"),
					To:   command.String("to"),
				})
				if err != nil {
					return err
				}

				newPrinter(command).records(records)

				return nil
			})
		},
	}
}

func NewBundleCommand() *cli.Command {
	return &cli.Command{
		Name:      "bundle",
		Usage:     "List the artifacts stored for a run",
		ArgsUsage: "<run-id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := runIDArg(command)
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				bundle, err := rt.Orchestrator.Bundle(ctx, id)
				if err != nil {
					return err
				}

				newPrinter(command).bundle(bundle)

				return nil
			})
		},
	}
}

func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Print the transition log of a run",
		ArgsUsage: "<run-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "after", Usage: "Only events with a greater sequence number"},
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Keep streaming until the run finishes"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := runIDArg(command)
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				p := newPrinter(command)

				if command.Bool("follow") {
					return follow(ctx, rt.Orchestrator, id, p)
				}

				events, err := rt.Orchestrator.Events(ctx, id, int64(command.Int("after")))
				if err != nil {
					return err
				}

				for _, event := range events {
					p.event(event)
				}

				return nil
			})
		},
	}
}

func follow(ctx context.Context, o *pipeline.Orchestrator, runID string, p *printer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := o.Subscribe(ctx, runID)
	if err != nil {
		return err
	}
	defer sub.Close()

	for event := range sub.Events() {
		p.event(event)
	}

	return nil
}

func NewStopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Ask a running pipeline to stop after its current step",
		ArgsUsage: "<run-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id, err := runIDArg(command)
			if err != nil {
				return err
			}

			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				err := rt.Orchestrator.StopRun(ctx, id)
				if err != nil {
					return err
				}

				newPrinter(command).line("Stop requested for " + id)

				return nil
			})
		},
	}
}

func NewRecoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "recover",
		Usage: "Mark runs left running by a crashed process as failed and free the run lock",
		Action: func(ctx context.Context, command *cli.Command) error {
			return withRuntime(ctx, command, func(rt *cmd.Runtime) error {
				recovered, err := rt.Orchestrator.Recover(ctx)
				if err != nil {
					return err
				}

				newPrinter(command).line(fmt.Sprintf("Recovered %d run(s)", recovered))

				return nil
			})
		},
	}
}

func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Follow run events published on the event bus by any process",
		ArgsUsage: "[run-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "until-finished",
				Usage: "Exit after the first run.finished event",
			},
			jsonFlag(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), log.WithModule("cli"))
			if err != nil {
				return err
			}

			if bus == nil {
				return errors.New("watch needs an event bus, set --event-bus kafka")
			}

			defer func() {
				_ = bus.Close()
			}()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return watchRuns(ctx, bus, command.Args().First(), command.Bool("until-finished"), newPrinter(command))
		},
	}
}

func watchRuns(ctx context.Context, sub eventbus.EventSubscriber, runID string, untilFinished bool, p *printer) error {
	err := sub.Watch(ctx, runID, func(_ context.Context, event events.Event) error {
		p.busEvent(event)

		if untilFinished && event.GetType() == events.RunFinishedEvent {
			return eventbus.ErrStopWatching
		}

		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

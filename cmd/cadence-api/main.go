package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "cadence-api",
		Usage:                 "Create, launch and follow sales cadences",
		EnableShellCompletion: true,
		Flags: slices.Concat([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "with-worker",
				Usage:   "Consume background jobs in this process",
				Sources: cli.EnvVars("WITH_WORKER"),
			},
			&cli.BoolFlag{
				Name:    "with-scheduler",
				Usage:   "Run the periodic scheduler in this process",
				Sources: cli.EnvVars("WITH_SCHEDULER"),
			},
		}, cmd.CommonFlags(), cmd.WorkerFlags(), cmd.SchedulerFlags()),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("cadence-api")
	logger.InfoContext(ctx, "Initializing Cadence API")

	rt, err := cmd.NewRuntime(ctx, command, "cadence-api", logger)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	if command.Bool("with-worker") {
		if err := rt.StartWorker(ctx, command); err != nil {
			return err
		}
	} else if command.String("event-bus") == "gochannel" {
		logger.WarnContext(ctx, "In-memory event bus without --with-worker: background jobs will not run")
	}

	if command.Bool("with-scheduler") {
		sched, err := rt.NewScheduler(command)
		if err != nil {
			return err
		}

		if err := sched.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := sched.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
			}
		}()
	}

	api := NewAPI(logger, rt.Engine, rt.Persistence.HealthCheck, rt.Metrics)

	return api.Start(ctx, command.Int("port"))
}

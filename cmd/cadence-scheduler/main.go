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

func main() {
	command := &cli.Command{
		Name:                  "cadence-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Resume paused cadences and leads, fire launch schedules and refresh daily queues",
		Flags:                 slices.Concat(cmd.CommonFlags(), cmd.SchedulerFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("cadence-scheduler")
			logger.InfoContext(ctx, "Initializing Cadence Scheduler")

			rt, err := cmd.NewRuntime(ctx, command, "cadence-scheduler", logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			sched, err := rt.NewScheduler(command)
			if err != nil {
				return err
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			return sched.Stop(context.WithoutCancel(ctx))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

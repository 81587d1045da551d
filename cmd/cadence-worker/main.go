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
		Name:                  "cadence-worker",
		EnableShellCompletion: true,
		Usage:                 "Run bulk launches, pauses, queue recalculations and CRM mirroring",
		Flags:                 slices.Concat(cmd.CommonFlags(), cmd.WorkerFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("cadence-worker")
			logger.InfoContext(ctx, "Initializing Cadence Worker")

			rt, err := cmd.NewRuntime(ctx, command, "cadence-worker", logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			if err := rt.StartWorker(ctx, command); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			<-ctx.Done()
			logger.InfoContext(ctx, "Shutting down worker")

			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/gragraf/pkg/run"
	cli "github.com/urfave/cli/v3"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the run control API",
		Flags: withCommonFlags(
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command, "api")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rt.logger.InfoContext(ctx, "Initializing Gragraf API", "engine", command.String("engine-url"))

			manager := run.NewManager(rt.engine, rt.store, rt.logger, rt.controllerOptions()...)
			defer manager.Shutdown(ctx)

			api := NewAPI(rt.logger, manager, rt.store)

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				sig := <-signals
				rt.logger.InfoContext(ctx, "Shutting down gracefully...", "signal", sig)

				if err := api.Shutdown(); err != nil {
					rt.logger.ErrorContext(ctx, "Failed to shutdown API", "error", err)
				}
			}()

			err = api.Start(command.Int("port"))
			if err != nil {
				rt.logger.ErrorContext(ctx, "Failed to start API", "error", err)

				return err
			}

			return nil
		},
	}
}

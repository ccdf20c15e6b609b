package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/gragraf/pkg/graphfile"
	"github.com/dukex/gragraf/pkg/run"
	cli "github.com/urfave/cli/v3"
)

var errMissingGraph = errors.New("graph document path is required")

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Run a graph document exported by the editor",
		ArgsUsage: "<graph.json>",
		Flags: withCommonFlags(
			&cli.BoolFlag{
				Name:  "interactive",
				Usage: "Prompt for approval decisions on stdin instead of exiting",
				Value: true,
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Do not print progress",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errMissingGraph
			}

			doc, err := graphfile.Load(path)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, command, "run")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			printer := newProgressPrinter(os.Stdout)
			if !command.Bool("quiet") {
				err = printer.Subscribe(ctx, rt.eventBus)
				if err != nil {
					return fmt.Errorf("failed to subscribe to session updates: %w", err)
				}
			}

			interrupts, notify := newInterruptQueue()
			controller := run.NewController(rt.engine, rt.logger, rt.controllerOptions(run.WithInterruptFunc(notify))...)

			threadID, err := controller.Run(ctx, doc.DSL(), doc.RuntimeInputs)
			printer.Follow(threadID)

			if err != nil {
				return fmt.Errorf("run %s could not be executed: %w", threadID, err)
			}

			return newDriver(controller, interrupts, command.Bool("interactive"), rt.logger).drive(ctx)
		},
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dukex/gragraf/pkg/run"
	"github.com/dukex/gragraf/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

func ScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "Run a graph document on a cron schedule",
		ArgsUsage: "<graph.json>",
		Flags: withCommonFlags(
			&cli.StringFlag{
				Name:     "cron",
				Usage:    "Standard five field cron expression",
				Required: true,
				Sources:  cli.EnvVars("SCHEDULE_CRON"),
			},
			&cli.StringFlag{
				Name:  "id",
				Usage: "Schedule id (defaults to the document file name)",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errMissingGraph
			}

			entry := schedule.Entry{
				ID:        scheduleID(command.String("id"), path),
				CronExpr:  command.String("cron"),
				GraphPath: path,
			}

			err := entry.Validate()
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, command, "schedule")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			manager := run.NewManager(rt.engine, rt.store, rt.logger, rt.controllerOptions()...)
			scheduler := schedule.NewScheduler(manager, rt.logger)

			err = scheduler.Add(entry)
			if err != nil {
				return err
			}

			scheduler.Start()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-signals:
				rt.logger.InfoContext(ctx, "Shutting down gracefully...", "signal", sig)
			case <-ctx.Done():
			}

			<-scheduler.Stop().Done()
			manager.Shutdown(ctx)

			return nil
		},
	}
}

func scheduleID(id, path string) string {
	if id != "" {
		return id
	}

	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Package main provides the gragraf command line: it runs editor graphs on the engine,
// resumes paused runs, serves the control API and dispatches graphs on a schedule.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	cmd := &cli.Command{
		Name:                  "gragraf",
		Usage:                 "Run workflow graphs on the execution engine",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			ResumeCommand(),
			ServeCommand(),
			ScheduleCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gragraf:", err)
		os.Exit(1)
	}
}

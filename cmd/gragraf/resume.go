package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/run"
	cli "github.com/urfave/cli/v3"
)

func ResumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Answer the approval request of a paused run and continue it",
		Flags: withCommonFlags(
			&cli.StringFlag{
				Name:     "thread-id",
				Aliases:  []string{"t"},
				Usage:    "Thread id printed when the run paused",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "decision",
				Aliases:  []string{"d"},
				Usage:    "approved or rejected",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "comment",
				Aliases: []string{"c"},
				Usage:   "Comment sent with the decision",
			},
			&cli.BoolFlag{
				Name:  "interactive",
				Usage: "Prompt for later approval decisions on stdin instead of exiting",
				Value: true,
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			verdict, ok := ParseDecision(command.String("decision"))
			if !ok {
				return fmt.Errorf("%w: %q", run.ErrInvalidDecision, command.String("decision"))
			}

			rt, err := newRuntime(ctx, command, "resume")
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			threadID := command.String("thread-id")

			printer := newProgressPrinter(os.Stdout)
			printer.Follow(threadID)

			err = printer.Subscribe(ctx, rt.eventBus)
			if err != nil {
				return fmt.Errorf("failed to subscribe to session updates: %w", err)
			}

			interrupts, notify := newInterruptQueue()
			controller := run.NewController(rt.engine, rt.logger, rt.controllerOptions(run.WithInterruptFunc(notify))...)

			err = controller.Restore(ctx, threadID)
			if err != nil {
				return err
			}

			err = submitStored(ctx, controller, models.HumanDecision{Decision: verdict, Comment: command.String("comment")})
			if err != nil {
				return err
			}

			return newDriver(controller, interrupts, command.Bool("interactive"), rt.logger).drive(ctx)
		},
	}
}

// submitStored answers the restored interrupt. A dismissed interrupt is gone from the
// store, so the paused node recorded on the session is answered instead.
func submitStored(ctx context.Context, controller *run.Controller, decision models.HumanDecision) error {
	if controller.PendingInterrupt() != nil {
		return controller.Submit(ctx, decision)
	}

	session := controller.Session()
	if session.Status != models.RunStatusWaitingForApproval || session.InterruptNodeID == "" {
		return fmt.Errorf("%w: status is %s", run.ErrNotWaiting, session.Status)
	}

	err := run.ValidateDecision(models.InterruptRequest{ThreadID: session.ThreadID, NodeID: session.InterruptNodeID}, decision)
	if err != nil {
		return err
	}

	return controller.Resume(ctx, session.ThreadID, run.ResumePayload(session.InterruptNodeID, decision))
}

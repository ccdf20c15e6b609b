package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/run"
)

// newInterruptQueue returns a queue fed from the read loop. The callback never blocks;
// a second interrupt arriving before the first is answered is dropped.
func newInterruptQueue() (chan models.InterruptRequest, run.InterruptFunc) {
	queue := make(chan models.InterruptRequest, 1)

	return queue, func(interrupt models.InterruptRequest) {
		select {
		case queue <- interrupt:
		default:
		}
	}
}

// driver follows one controller in the foreground until its run ends, or until it
// pauses and nobody is there to answer.
type driver struct {
	controller  *run.Controller
	interrupts  <-chan models.InterruptRequest
	interactive bool
	in          *bufio.Reader
	out         io.Writer
	logger      *slog.Logger
}

func newDriver(controller *run.Controller, interrupts <-chan models.InterruptRequest, interactive bool, logger *slog.Logger) *driver {
	return &driver{
		controller:  controller,
		interrupts:  interrupts,
		interactive: interactive,
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		logger:      logger,
	}
}

func (d *driver) drive(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(signals)

	for {
		done := make(chan struct{})

		go func() {
			_ = d.controller.Wait(ctx)

			close(done)
		}()

		select {
		case interrupt := <-d.interrupts:
			paused, err := d.answer(ctx, interrupt)
			if err != nil || paused {
				return err
			}
		case <-done:
			// The loop may end right after queuing an interrupt.
			select {
			case interrupt := <-d.interrupts:
				paused, err := d.answer(ctx, interrupt)
				if err != nil || paused {
					return err
				}

				continue
			default:
			}

			return d.finish()
		case sig := <-signals:
			d.logger.InfoContext(ctx, "Received signal", "signal", sig)
			d.controller.Cancel(ctx)

			return d.finish()
		}
	}
}

// answer prompts for a decision and resumes. Without an operator the stream is closed
// and the run stays paused in the session store.
func (d *driver) answer(ctx context.Context, interrupt models.InterruptRequest) (bool, error) {
	if !d.interactive {
		d.controller.Cancel(ctx)
		d.printResumeHint(interrupt.ThreadID, interrupt.NodeID)

		return true, nil
	}

	decision, err := promptDecision(d.in, d.out, interrupt)
	if err != nil {
		d.controller.Cancel(ctx)
		d.printResumeHint(interrupt.ThreadID, interrupt.NodeID)

		return true, err
	}

	err = d.controller.Submit(ctx, decision)
	if err != nil {
		return false, err
	}

	return false, nil
}

func (d *driver) finish() error {
	session := d.controller.Session()
	if session == nil {
		return nil
	}

	switch session.Status {
	case models.RunStatusFailed:
		return fmt.Errorf("run %s failed: %s", session.ThreadID, session.Error)
	case models.RunStatusWaitingForApproval:
		d.printResumeHint(session.ThreadID, session.InterruptNodeID)
	case models.RunStatusCompleted:
		result, err := json.MarshalIndent(session.FinalResult, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}

		fmt.Fprintf(d.out, "Run %s completed (%d/%d nodes, %s)\n%s\n",
			session.ThreadID, session.CompletedNodes, session.TotalNodes, session.Duration, result)
	}

	return nil
}

func (d *driver) printResumeHint(threadID, nodeID string) {
	fmt.Fprintf(d.out, "Run %s is waiting for approval at %s.\n", threadID, nodeID)
	fmt.Fprintf(d.out, "Resume with: gragraf resume --thread-id %s --decision approved|rejected --comment \"...\"\n", threadID)
}

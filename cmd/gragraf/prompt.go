package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/run"
)

var errNoInput = errors.New("input closed before a decision was made")

// ParseDecision accepts the usual spellings of approve and reject.
func ParseDecision(answer string) (models.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "a", "approve", "approved", "y", "yes":
		return models.DecisionApproved, true
	case "r", "reject", "rejected", "n", "no":
		return models.DecisionRejected, true
	default:
		return "", false
	}
}

// promptDecision asks for a decision on interrupt until a valid one is entered.
func promptDecision(in *bufio.Reader, out io.Writer, interrupt models.InterruptRequest) (models.HumanDecision, error) {
	fmt.Fprintf(out, "\n%s\n", interrupt.Message)

	var decision models.HumanDecision

	for decision.Decision == "" {
		fmt.Fprintf(out, "[a] %s / [r] %s: ", interrupt.ApprovalLabel, interrupt.RejectionLabel)

		line, err := readLine(in)
		if err != nil {
			return decision, err
		}

		if d, ok := ParseDecision(line); ok {
			decision.Decision = d
		}
	}

	for {
		label := interrupt.InputLabel
		if !interrupt.RequireComment {
			label += " (optional)"
		}

		fmt.Fprintf(out, "%s: ", label)

		line, err := readLine(in)
		if err != nil {
			return decision, err
		}

		decision.Comment = strings.TrimSpace(line)

		err = run.ValidateDecision(interrupt, decision)
		if err == nil {
			return decision, nil
		}

		fmt.Fprintln(out, err)
	}
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}

		if errors.Is(err, io.EOF) {
			return "", errNoInput
		}

		return "", err
	}

	return line, nil
}

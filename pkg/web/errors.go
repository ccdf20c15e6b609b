package web

import (
	"errors"

	"github.com/dukex/gragraf/pkg/graphfile"
	"github.com/dukex/gragraf/pkg/run"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleRunError maps controller errors to problem responses.
func handleRunError(c fiber.Ctx, err error) error {
	var resumeErr *run.ResumeError

	switch {
	case errors.Is(err, graphfile.ErrInvalidDocument), errors.Is(err, run.ErrMissingThreadID):
		return badRequest(c, err.Error())

	case errors.Is(err, run.ErrSessionNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("session_not_found").
			WithDetail("session not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, run.ErrNoPendingInterrupt),
		errors.Is(err, run.ErrNotWaiting),
		errors.Is(err, run.ErrStreamActive):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, run.ErrCommentRequired), errors.Is(err, run.ErrInvalidDecision):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_decision").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case errors.As(err, &resumeErr):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("resume_failed").
			WithDetail(resumeErr.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		return internalError(c, err)
	}
}

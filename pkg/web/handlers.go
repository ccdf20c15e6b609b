package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/gragraf/pkg/graphfile"
	"github.com/dukex/gragraf/pkg/models"
	"github.com/dukex/gragraf/pkg/persistence"
	"github.com/dukex/gragraf/pkg/run"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	manager   *run.Manager
	store     persistence.SessionStore
	validator *validator.Validate
}

func NewAPIHandlers(manager *run.Manager, store persistence.SessionStore, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		store:     store,
		validator: validator,
	}
}

// Register mounts the run routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	r := router.Group("/runs")
	r.Post("/", h.StartRun)
	r.Get("/:threadId", h.GetRun)
	r.Post("/:threadId/decision", h.SubmitDecision)
	r.Post("/:threadId/dismiss", h.DismissInterrupt)
	r.Post("/:threadId/cancel", h.CancelRun)
	r.Delete("/:threadId", h.DeleteRun)
}

// StartRun compiles the posted graph and starts it. A streamed run answers 202 while it
// is still going; a run that fell back to the single request answers 200 with its
// final session.
func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	doc, err := graphfile.Parse(c.Body())
	if err != nil {
		return handleRunError(c, err)
	}

	session, err := h.manager.Run(detached(), doc.DSL(), doc.RuntimeInputs)
	if err != nil {
		if session == nil {
			return internalError(c, err)
		}

		return c.Status(fiber.StatusBadGateway).JSON(newRunResponse(session, nil))
	}

	status := fiber.StatusAccepted
	if session.Status.IsTerminal() {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(newRunResponse(session, nil))
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	session, interrupt, err := h.manager.Session(c.Context(), c.Params("threadId"))
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(newRunResponse(session, interrupt))
}

func (h *APIHandlers) SubmitDecision(c fiber.Ctx) error {
	threadID := c.Params("threadId")

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.manager.Decide(detached(), threadID, models.HumanDecision{
		Decision: models.Decision(req.Decision),
		Comment:  req.Comment,
	})
	if err != nil {
		return handleRunError(c, err)
	}

	return h.respondWithRun(c, threadID, fiber.StatusAccepted)
}

func (h *APIHandlers) DismissInterrupt(c fiber.Ctx) error {
	threadID := c.Params("threadId")

	err := h.manager.Dismiss(c.Context(), threadID)
	if err != nil {
		return handleRunError(c, err)
	}

	return h.respondWithRun(c, threadID, fiber.StatusOK)
}

func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	threadID := c.Params("threadId")

	err := h.manager.Cancel(c.Context(), threadID)
	if err != nil {
		return handleRunError(c, err)
	}

	return h.respondWithRun(c, threadID, fiber.StatusOK)
}

func (h *APIHandlers) DeleteRun(c fiber.Ctx) error {
	err := h.manager.Forget(c.Context(), c.Params("threadId"))
	if err != nil {
		return handleRunError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Gragraf API is healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()

		if err := h.store.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			message = "Gragraf API is unhealthy"
			httpStatus = http.StatusInternalServerError
			storeCheck = err.Error()
		}
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"session_store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) respondWithRun(c fiber.Ctx, threadID string, status int) error {
	session, interrupt, err := h.manager.Session(c.Context(), threadID)
	if err != nil {
		return handleRunError(c, err)
	}

	return c.Status(status).JSON(newRunResponse(session, interrupt))
}

// detached returns the context read loops are started with. They outlive the request,
// and fiber recycles the request context once the handler returns.
func detached() context.Context {
	return context.Background()
}

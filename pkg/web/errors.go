package web

import (
	"errors"

	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/pipeline"
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

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("already_running").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func unavailable(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(503).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
}

// internalError hides the cause from the client.
func internalError(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithDetail("unexpected error, see server logs")

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps orchestrator and store errors to problem responses.
func (h *APIHandlers) handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case pipeline.IsAlreadyRunning(err):
		return conflict(c, err.Error())

	case pipeline.IsInvalidDate(err), pipeline.IsInvalidMode(err):
		return badRequest(c, err.Error())

	case pipeline.IsNotFound(err):
		return notFound(c, err.Error())

	case persistence.IsStoreUnavailable(err):
		h.logger.ErrorContext(c.Context(), "Run store unavailable", "path", c.Path(), "error", err)

		return unavailable(c, "store_unavailable", persistence.ErrStoreUnavailable.Error())

	case errors.Is(err, pipeline.ErrShuttingDown):
		return unavailable(c, "shutting_down", err.Error())

	default:
		h.logger.ErrorContext(c.Context(), "Request failed", "path", c.Path(), "error", err)

		return internalError(c)
	}
}

package web

import (
	"errors"

	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/supervisor"
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

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps catalog and supervisor errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, supervisor.ErrInvalidFlow), errors.Is(err, supervisor.ErrInvalidInput),
		errors.Is(err, flows.ErrInvalidFlowID):
		return badRequest(c, err.Error())

	case errors.Is(err, supervisor.ErrFlowNotPublished), errors.Is(err, supervisor.ErrDuplicateExecution),
		errors.Is(err, supervisor.ErrInvalidStateTransition):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, flows.ErrFlowNotFound):
		return notFound(c, "flow_not_found", "flow not found")

	case supervisor.IsNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	default:
		return internalError(c, err)
	}
}

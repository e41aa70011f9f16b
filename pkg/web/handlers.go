// Package web provides HTTP handlers and REST API endpoints for flows and their executions.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/flowrun/pkg/flows"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/schedule"
	"github.com/dukex/flowrun/pkg/supervisor"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// FlowScheduler keeps cron entries in step with the flows saved through the API.
type FlowScheduler interface {
	Register(flow *models.Flow) error
	Unregister(flowID string)
}

type APIHandlers struct {
	supervisor  *supervisor.Supervisor
	flows       flows.Repository
	persistence persistence.Persistence
	validator   *validator.Validate
	registry    *registry.Registry
	scheduler   FlowScheduler
}

func NewAPIHandlers(
	sup *supervisor.Supervisor,
	flowRepository flows.Repository,
	p persistence.Persistence,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		supervisor:  sup,
		flows:       flowRepository,
		persistence: p,
		validator:   validator,
		registry:    registry,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	f := router.Group("/flows")
	f.Get("/", h.ListFlows)
	f.Post("/", h.SaveFlow)
	f.Post("/validate", h.ValidateFlow)
	f.Get("/:id", h.GetFlow)
	f.Post("/:id/executions", h.StartExecution)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/cancel", h.CancelExecution)

	router.Get("/actions", h.ListActions)
	router.Get("/health", h.HealthCheck)
}

// WithScheduler makes SaveFlow register or drop the cron entry of every saved flow.
func (h *APIHandlers) WithScheduler(scheduler FlowScheduler) *APIHandlers {
	h.scheduler = scheduler

	return h
}

func (h *APIHandlers) ListFlows(c fiber.Ctx) error {
	all, err := h.flows.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	summaries := make([]FlowSummary, 0, len(all))
	for _, flow := range all {
		summaries = append(summaries, NewFlowSummary(flow))
	}

	return c.JSON(fiber.Map{
		"flows":       summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.flows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(flow)
}

// SaveFlow stores a flow definition. Invalid graphs are rejected with their violations.
func (h *APIHandlers) SaveFlow(c fiber.Ctx) error {
	var flow models.Flow
	if err := c.Bind().JSON(&flow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := graph.Validate(&flow).Err(flow.ID); err != nil {
		return badRequest(c, err.Error())
	}

	if flow.Schedule != "" {
		if err := schedule.Validate(flow.Schedule); err != nil {
			return badRequest(c, err.Error())
		}
	}

	if err := h.flows.Save(c.Context(), &flow); err != nil {
		return handleError(c, err)
	}

	if h.scheduler != nil {
		if flow.Schedule != "" && flow.Status.Executable() {
			if err := h.scheduler.Register(&flow); err != nil {
				return internalError(c, err)
			}
		} else {
			h.scheduler.Unregister(flow.ID)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(flow)
}

// ValidateFlow checks a flow definition without storing it.
func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	var flow models.Flow
	if err := c.Bind().JSON(&flow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	result := graph.Validate(&flow)

	violations := result.Violations
	if violations == nil {
		violations = []graph.Violation{}
	}

	status := fiber.StatusOK
	if !result.Valid {
		status = fiber.StatusUnprocessableEntity
	}

	return c.Status(status).JSON(ValidateFlowResponse{Valid: result.Valid, Violations: violations})
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	flow, err := h.flows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	var req StartExecutionRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Input == nil {
		req.Input = map[string]any{}
	}

	var opts []supervisor.StartOption
	if req.ExecutionID != "" {
		opts = append(opts, supervisor.WithExecutionID(req.ExecutionID))
	}

	id, err := h.supervisor.Start(c.Context(), flow, req.Input, opts...)
	if err != nil {
		return handleError(c, err)
	}

	if req.Wait {
		snapshot, err := h.supervisor.Wait(c.Context(), id)
		if err != nil {
			return handleError(c, err)
		}

		return c.JSON(NewExecutionResponse(snapshot))
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{
		ExecutionID: id,
		FlowID:      flow.ID,
		Status:      models.ExecutionStatusPending,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	snapshot, err := h.supervisor.Status(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(NewExecutionResponse(snapshot))
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")

	logs, err := h.supervisor.Logs(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	if logs == nil {
		logs = []*models.ExecutionLogEntry{}
	}

	return c.JSON(LogsResponse{ExecutionID: id, Logs: logs})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")

	if err := h.supervisor.Cancel(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": id,
		"cancelling":   true,
	})
}

func (h *APIHandlers) ListActions(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"actions": h.registry.Describe()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	repositoryCheck := "ok"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(ctx); err != nil {
		repositoryCheck = err.Error()
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": repositoryCheck,
			"actions":     len(h.registry.ActionTypes()),
		},
		"running_executions": h.supervisor.Running(),
		"timestamp":          time.Now().UTC(),
	})
}

// Package web provides the HTTP handlers of the automation API.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadline/leadline/pkg/services"
)

type APIHandlers struct {
	workflowService   *services.Workflow
	automationService *services.Automation
	validator         *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	automationService *services.Automation,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:   workflowService,
		automationService: automationService,
		validator:         validator,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		return badRequest(c, "owner_id query parameter is required")
	}

	workflows, err := h.workflowService.ListWorkflows(c.Context(), ownerID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflowService.CreateWorkflow(c.Context(), toCreateServiceRequest(&req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.workflowService.UpdateWorkflow(c.Context(), id, toUpdateServiceRequest(&req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.workflowService.DeleteWorkflow(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// FireTrigger lets integrations fire a business event manually. The
// trigger pass itself never fails the request.
func (h *APIHandlers) FireTrigger(c fiber.Ctx) error {
	var req FireTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if !req.TriggerEvent.IsValid() {
		return badRequest(c, "unknown trigger event: "+string(req.TriggerEvent))
	}

	err := h.automationService.FireTrigger(c.Context(), req.TriggerEvent, req.OwnerID, req.LeadID, req.Extra)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "trigger accepted",
	})
}

// RunSweep runs one reconciliation pass and reports its counts.
func (h *APIHandlers) RunSweep(c fiber.Ctx) error {
	outcome, err := h.automationService.RunSweep(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "sweep failed",
			"error":   err.Error(),
		})
	}

	return c.JSON(SweepResponse{
		Message:           outcome.Message,
		ProcessedEntities: outcome.Result.ProcessedEntities,
		ProcessedSteps:    outcome.Result.ProcessedSteps,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "LeadLine API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "LeadLine API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

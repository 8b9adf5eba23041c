package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// StepInput is one step definition in a create or update request.
type StepInput struct {
	Kind   models.StepKind `json:"kind"`
	Order  int             `json:"order"`
	Config json.RawMessage `json:"config"`
}

// CreateWorkflowRequest contains the fields for creating a workflow.
type CreateWorkflowRequest struct {
	OwnerID      string              `json:"owner_id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	TriggerEvent models.TriggerEvent `json:"trigger_event"`
	Active       bool                `json:"active"`
	Steps        []StepInput         `json:"steps"`
}

// UpdateWorkflowRequest contains the fields for updating a workflow. Nil
// pointers leave the current value untouched; a non-nil Steps slice
// replaces the whole step set.
type UpdateWorkflowRequest struct {
	Name         *string              `json:"name"`
	Description  *string              `json:"description"`
	TriggerEvent *models.TriggerEvent `json:"trigger_event"`
	Active       *bool                `json:"active"`
	Steps        []StepInput          `json:"steps"`
}

// Workflow handles workflow management operations.
type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflows returns the owner's workflows, newest first.
func (w *Workflow) ListWorkflows(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	if ownerID == "" {
		return nil, ErrEmptyOwnerID
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// GetWorkflow returns one workflow with its ordered steps.
func (w *Workflow) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return workflow, nil
}

// CreateWorkflow validates and persists a new workflow definition.
func (w *Workflow) CreateWorkflow(ctx context.Context, req *CreateWorkflowRequest) (*models.Workflow, error) {
	if req.OwnerID == "" {
		return nil, ErrEmptyOwnerID
	}

	if req.Name == "" {
		return nil, ErrWorkflowNameRequired
	}

	if !req.TriggerEvent.IsValid() {
		return nil, NewValidationError("CreateWorkflow", string(req.TriggerEvent), ErrInvalidTriggerEvent)
	}

	steps, err := buildSteps(req.Steps)
	if err != nil {
		return nil, err
	}

	workflow := &models.Workflow{
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Description:  req.Description,
		TriggerEvent: req.TriggerEvent,
		Active:       req.Active,
		Steps:        steps,
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// UpdateWorkflow applies a partial update. A non-nil Steps slice replaces
// every existing step; already-created execution logs keep their copied
// order numbers.
func (w *Workflow) UpdateWorkflow(ctx context.Context, id string, req *UpdateWorkflowRequest) (*models.Workflow, error) {
	workflow, err := w.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, ErrWorkflowNameRequired
		}

		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.TriggerEvent != nil {
		if !req.TriggerEvent.IsValid() {
			return nil, NewValidationError("UpdateWorkflow", string(*req.TriggerEvent), ErrInvalidTriggerEvent)
		}

		workflow.TriggerEvent = *req.TriggerEvent
	}

	if req.Active != nil {
		workflow.Active = *req.Active
	}

	if req.Steps != nil {
		steps, err := buildSteps(req.Steps)
		if err != nil {
			return nil, err
		}

		workflow.Steps = steps
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// DeleteWorkflow soft-deletes a workflow. Pending execution logs of past
// runs are untouched and still swept.
func (w *Workflow) DeleteWorkflow(ctx context.Context, id string) error {
	err := w.persistence.WorkflowRepository().Delete(ctx, id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return ErrWorkflowNotFound
		}

		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// buildSteps validates step inputs and converts them to models. Orders
// must be positive and unique; configs must satisfy their kind's schema.
func buildSteps(inputs []StepInput) ([]*models.WorkflowStep, error) {
	steps := make([]*models.WorkflowStep, 0, len(inputs))
	seenOrders := make(map[int]bool, len(inputs))

	for _, input := range inputs {
		if !knownStepKind(input.Kind) {
			return nil, NewValidationError("buildSteps", string(input.Kind), ErrUnknownStepKind)
		}

		if input.Order < 1 {
			return nil, NewValidationError("buildSteps", fmt.Sprintf("order %d", input.Order), ErrStepOrderRequired)
		}

		if seenOrders[input.Order] {
			return nil, NewValidationError("buildSteps", fmt.Sprintf("order %d", input.Order), ErrDuplicateStepOrder)
		}

		seenOrders[input.Order] = true

		step := &models.WorkflowStep{
			Kind:   input.Kind,
			Order:  input.Order,
			Config: input.Config,
		}

		if err := models.ValidateStepConfig(step); err != nil {
			return nil, NewValidationError("buildSteps", err.Error(), ErrInvalidStepConfig)
		}

		if err := step.DecodeConfig(); err != nil {
			return nil, NewValidationError("buildSteps", err.Error(), ErrInvalidStepConfig)
		}

		steps = append(steps, step)
	}

	return steps, nil
}

func knownStepKind(kind models.StepKind) bool {
	switch kind {
	case models.StepWaitDelay, models.StepSendEmail, models.StepSendSMS, models.StepUpdateStatus:
		return true
	default:
		return false
	}
}

// Package web provides HTTP request and response types for the
// automation API.
package web

import (
	"encoding/json"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/services"
)

// StepRequest is one step definition in a workflow create or update body.
type StepRequest struct {
	Kind   models.StepKind `json:"kind"   validate:"required"`
	Order  int             `json:"order"  validate:"required,min=1"`
	Config json.RawMessage `json:"config"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	OwnerID      string              `json:"owner_id"      validate:"required"`
	Name         string              `json:"name"          validate:"required,min=3"`
	Description  string              `json:"description"`
	TriggerEvent models.TriggerEvent `json:"trigger_event" validate:"required"`
	Active       bool                `json:"active"`
	Steps        []StepRequest       `json:"steps"         validate:"dive"`
}

// UpdateWorkflowRequest represents the request body for updating an
// existing workflow. All fields are optional to support partial updates;
// a non-nil steps array replaces the whole step set.
type UpdateWorkflowRequest struct {
	Name         *string              `json:"name,omitempty"          validate:"omitempty,min=3"`
	Description  *string              `json:"description,omitempty"`
	TriggerEvent *models.TriggerEvent `json:"trigger_event,omitempty"`
	Active       *bool                `json:"active,omitempty"`
	Steps        []StepRequest        `json:"steps,omitempty"         validate:"omitempty,dive"`
}

// FireTriggerRequest represents the request body for firing a trigger
// event manually.
type FireTriggerRequest struct {
	TriggerEvent models.TriggerEvent `json:"trigger_event" validate:"required"`
	OwnerID      string              `json:"owner_id"      validate:"required"`
	LeadID       string              `json:"lead_id"       validate:"required"`
	Extra        map[string]string   `json:"extra,omitempty"`
}

// SweepResponse is the body returned by the sweep endpoint.
type SweepResponse struct {
	Message           string `json:"message"`
	ProcessedEntities int    `json:"processed_entities"`
	ProcessedSteps    int    `json:"processed_steps"`
}

func toCreateServiceRequest(req *CreateWorkflowRequest) *services.CreateWorkflowRequest {
	return &services.CreateWorkflowRequest{
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Description:  req.Description,
		TriggerEvent: req.TriggerEvent,
		Active:       req.Active,
		Steps:        toStepInputs(req.Steps),
	}
}

func toUpdateServiceRequest(req *UpdateWorkflowRequest) *services.UpdateWorkflowRequest {
	out := &services.UpdateWorkflowRequest{
		Name:         req.Name,
		Description:  req.Description,
		TriggerEvent: req.TriggerEvent,
		Active:       req.Active,
	}

	if req.Steps != nil {
		out.Steps = toStepInputs(req.Steps)
	}

	return out
}

func toStepInputs(steps []StepRequest) []services.StepInput {
	inputs := make([]services.StepInput, 0, len(steps))
	for _, step := range steps {
		inputs = append(inputs, services.StepInput{
			Kind:   step.Kind,
			Order:  step.Order,
			Config: step.Config,
		})
	}

	return inputs
}

// Package models defines the core domain models for the lead automation engine.
package models

import "time"

// TriggerEvent identifies the business occurrence that activates matching workflows.
type TriggerEvent string

const (
	TriggerNewLeadCreated    TriggerEvent = "newLeadCreated"
	TriggerLeadStatusChanged TriggerEvent = "leadStatusChanged"
	TriggerLeadUpdated       TriggerEvent = "leadUpdated"
	TriggerLeadCreatedViaAPI TriggerEvent = "leadCreatedViaAPI"
	TriggerLeadMarkedAsLost  TriggerEvent = "leadMarkedAsLost"
)

// KnownTriggerEvents lists every trigger event the engine reacts to.
var KnownTriggerEvents = []TriggerEvent{
	TriggerNewLeadCreated,
	TriggerLeadStatusChanged,
	TriggerLeadUpdated,
	TriggerLeadCreatedViaAPI,
	TriggerLeadMarkedAsLost,
}

// IsValid reports whether the trigger event is one of the known events.
func (e TriggerEvent) IsValid() bool {
	for _, known := range KnownTriggerEvents {
		if e == known {
			return true
		}
	}

	return false
}

// Workflow is a named, user-owned automation definition: an ordered
// sequence of steps fired when its trigger event occurs.
type Workflow struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"     validate:"required"`
	Name         string          `json:"name"         validate:"required,min=3"`
	Description  string          `json:"description"`
	TriggerEvent TriggerEvent    `json:"trigger_event" validate:"required"`
	Active       bool            `json:"active"`
	Steps        []*WorkflowStep `json:"steps"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
}

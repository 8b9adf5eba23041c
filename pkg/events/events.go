// Package events defines the event types exchanged over the engine's bus.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
)

type EventType string

// Topic is the bus topic every engine event is published to.
const Topic = "leadline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// LeadTriggerFiredEvent announces a business occurrence that the
	// trigger runner should react to.
	LeadTriggerFiredEvent EventType = "lead.trigger.fired"

	// SweepCompletedEvent announces the outcome of a reconciliation pass.
	SweepCompletedEvent EventType = "sweep.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	OwnerID   string         `json:"owner_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, ownerID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		OwnerID:   ownerID,
	}
}

// LeadTriggerFired carries one business event for asynchronous trigger
// processing. Extra holds trigger-specific template fields.
type LeadTriggerFired struct {
	BaseEvent

	TriggerEvent models.TriggerEvent `json:"trigger_event"`
	LeadID       string              `json:"lead_id"`
	Extra        map[string]string   `json:"extra,omitempty"`
}

func NewLeadTriggerFired(ownerID string, event models.TriggerEvent, leadID string, extra map[string]string) *LeadTriggerFired {
	return &LeadTriggerFired{
		BaseEvent:    NewBaseEvent(LeadTriggerFiredEvent, ownerID),
		TriggerEvent: event,
		LeadID:       leadID,
		Extra:        extra,
	}
}

func (e LeadTriggerFired) GetType() EventType {
	return LeadTriggerFiredEvent
}

// Validate performs basic structural validation before publishing.
func (e *LeadTriggerFired) Validate() error {
	if e.OwnerID == "" {
		return errors.New("owner_id is required")
	}

	if e.LeadID == "" {
		return errors.New("lead_id is required")
	}

	if !e.TriggerEvent.IsValid() {
		return errors.New("unknown trigger event: " + string(e.TriggerEvent))
	}

	return nil
}

// SweepCompleted reports one finished reconciliation pass.
type SweepCompleted struct {
	BaseEvent

	SweepRunID        string `json:"sweep_run_id"`
	ProcessedEntities int    `json:"processed_entities"`
	ProcessedSteps    int    `json:"processed_steps"`
	Error             string `json:"error,omitempty"`
}

func NewSweepCompleted(sweepRunID string, processedEntities, processedSteps int, sweepErr string) *SweepCompleted {
	return &SweepCompleted{
		BaseEvent:         NewBaseEvent(SweepCompletedEvent, ""),
		SweepRunID:        sweepRunID,
		ProcessedEntities: processedEntities,
		ProcessedSteps:    processedSteps,
		Error:             sweepErr,
	}
}

func (e SweepCompleted) GetType() EventType {
	return SweepCompletedEvent
}

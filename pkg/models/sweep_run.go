package models

import "time"

// SweepStatus is the outcome recorded for one reconciliation sweep.
type SweepStatus string

const (
	SweepStatusStarted   SweepStatus = "started"
	SweepStatusCompleted SweepStatus = "completed"
	SweepStatusFailed    SweepStatus = "failed"
)

// SweepRun is the run ledger entry for a single reconciliation sweep:
// append-only except for the single update at completion or failure.
type SweepRun struct {
	ID                string      `json:"id"`
	Status            SweepStatus `json:"status"`
	ProcessedEntities int         `json:"processed_entities"`
	ProcessedSteps    int         `json:"processed_steps"`
	Error             string      `json:"error,omitempty"`
	StartedAt         time.Time   `json:"started_at"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
}

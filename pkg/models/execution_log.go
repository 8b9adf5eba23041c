package models

import "time"

// LogStatus is the lifecycle state of an execution log entry.
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusDone    LogStatus = "done"
)

// ExecutionLog is the persisted progress record for one step of one
// workflow run against one triggering lead. OrderNo is copied from the
// step at creation time so history survives later step edits.
type ExecutionLog struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	WorkflowID string     `json:"workflow_id"`
	LeadID     string     `json:"lead_id"`
	StepID     string     `json:"step_id"`
	OrderNo    int        `json:"order_no"`
	Status     LogStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	Detail     string     `json:"detail,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Done reports whether the log entry has been completed.
func (l *ExecutionLog) Done() bool {
	return l.Status == LogStatusDone
}

// Package persistence provides the data storage abstraction layer for the
// automation engine and its collaborating record stores.
package persistence

import (
	"context"
	"time"

	"github.com/leadline/leadline/pkg/models"
)

// Persistence aggregates every repository the engine and API depend on.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionLogRepository() ExecutionLogRepository
	SweepRunRepository() SweepRunRepository
	LeadRepository() LeadRepository
	UserRepository() UserRepository
	TemplateRepository() TemplateRepository
	VariableRepository() VariableRepository
	StatusChangeRepository() StatusChangeRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions and their step sets.
type WorkflowRepository interface {
	List(ctx context.Context, ownerID string) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// Save upserts the workflow and replaces its entire step set.
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	// FindActiveByEvent returns the owner's active workflows whose trigger
	// matches the event, steps loaded in ascending order.
	FindActiveByEvent(ctx context.Context, ownerID string, event models.TriggerEvent) ([]*models.Workflow, error)
}

// ExecutionLogRepository stores per-step execution progress.
type ExecutionLogRepository interface {
	BulkCreate(ctx context.Context, logs []*models.ExecutionLog) error
	// PendingAll returns every pending log across all users and workflows.
	PendingAll(ctx context.Context) ([]*models.ExecutionLog, error)
	// ByLead returns all logs (pending and done) for a lead ordered by
	// order number; done entries serve as time anchors during sweeps.
	ByLead(ctx context.Context, leadID string) ([]*models.ExecutionLog, error)
	// MarkDone flips a pending log to done. It reports false when the log
	// was already done, making completion idempotent under races.
	MarkDone(ctx context.Context, id string, executedAt time.Time, detail string) (bool, error)
	IncrementAttempts(ctx context.Context, id string) error
}

// SweepRunRepository stores the reconciliation run ledger.
type SweepRunRepository interface {
	Create(ctx context.Context, run *models.SweepRun) error
	Finish(ctx context.Context, run *models.SweepRun) error
	List(ctx context.Context, limit int) ([]*models.SweepRun, error)
}

// LeadRepository is the record store for triggering entities.
type LeadRepository interface {
	GetByID(ctx context.Context, id string) (*models.Lead, error)
	Save(ctx context.Context, lead *models.Lead) error
	UpdateStatus(ctx context.Context, id, statusID string) error
}

// UserRepository is the record store for acting users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Save(ctx context.Context, user *models.User) error
	// DebitSMSBalance atomically deducts amount when the balance covers
	// it, reporting whether the debit happened.
	DebitSMSBalance(ctx context.Context, id string, amount int) (bool, error)
}

// TemplateRepository stores email and SMS message templates.
type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.MessageTemplate, error)
	Save(ctx context.Context, template *models.MessageTemplate) error
}

// VariableRepository stores per-user custom variables, read-only from the
// engine's perspective.
type VariableRepository interface {
	ForUser(ctx context.Context, userID string) ([]*models.UserVariable, error)
	Save(ctx context.Context, variable *models.UserVariable) error
}

// StatusChangeRepository appends status-change audit rows.
type StatusChangeRepository interface {
	Create(ctx context.Context, change *models.StatusChange) error
}

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// List returns all of an owner's workflows, newest first.
func (r *WorkflowRepository) List(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , trigger_event
		  , active
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflows
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadWorkflowSteps(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow with its steps.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , trigger_event
		  , active
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := r.scanWorkflowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadWorkflowSteps(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}

	return workflow, nil
}

// FindActiveByEvent returns active workflows owned by ownerID matching
// the trigger event, steps loaded in ascending order.
func (r *WorkflowRepository) FindActiveByEvent(ctx context.Context, ownerID string, event models.TriggerEvent) ([]*models.Workflow, error) {
	query := `
		SELECT
			id
		  , owner_id
		  , name
		  , description
		  , trigger_event
		  , active
		  , created_at
		  , updated_at
		  , deleted_at
		FROM workflows
		WHERE owner_id = $1
		  AND trigger_event = $2
		  AND active = true
		  AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by event: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadWorkflowSteps(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// Save upserts the workflow and replaces its entire step set.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	workflowQuery := `
		INSERT INTO workflows (id, owner_id, name, description, trigger_event, active, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_event = EXCLUDED.trigger_event,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = tx.ExecContext(ctx, workflowQuery,
		workflow.ID,
		workflow.OwnerID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerEvent,
		workflow.Active,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	// Updates replace the whole step set
	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing steps: %w", err)
	}

	if err = r.saveWorkflowSteps(ctx, tx, workflow); err != nil {
		return fmt.Errorf("failed to save workflow steps: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a workflow by setting deleted_at timestamp.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) loadWorkflowSteps(ctx context.Context, workflow *models.Workflow) error {
	stepsQuery := `
		SELECT id, workflow_id, kind, step_order, config
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.QueryContext(ctx, stepsQuery, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var step models.WorkflowStep

		err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.Kind,
			&step.Order,
			&step.Config,
		)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		if err := step.DecodeConfig(); err != nil {
			return fmt.Errorf("failed to decode step config: %w", err)
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	workflow.Steps = steps

	return nil
}

func (r *WorkflowRepository) saveWorkflowSteps(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for _, step := range workflow.Steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflow.ID

		config := step.Config
		if len(config) == 0 {
			config = []byte("{}")
		}

		query := `
			INSERT INTO workflow_steps (id, workflow_id, kind, step_order, config)
			VALUES ($1, $2, $3, $4, $5)
		`

		_, err := tx.ExecContext(ctx, query,
			step.ID,
			step.WorkflowID,
			step.Kind,
			step.Order,
			config,
		)
		if err != nil {
			return fmt.Errorf("failed to save step: %w", err)
		}
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflowBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Workflow, error) {
	var workflow models.Workflow

	err := scanner.Scan(
		&workflow.ID,
		&workflow.OwnerID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerEvent,
		&workflow.Active,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

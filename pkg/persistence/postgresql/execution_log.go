package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
)

// ExecutionLogRepository handles execution log database operations.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// BulkCreate inserts one pending log per step inside a single transaction.
func (r *ExecutionLogRepository) BulkCreate(ctx context.Context, logs []*models.ExecutionLog) error {
	if len(logs) == 0 {
		return nil
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

	query := `
		INSERT INTO execution_logs (id, owner_id, workflow_id, lead_id, step_id, order_no, status, attempts, detail, executed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now().UTC()

	for _, entry := range logs {
		if entry.ID == "" {
			id, idErr := uuid.NewV7()
			if idErr != nil {
				err = fmt.Errorf("failed to generate log ID: %w", idErr)

				return err
			}

			entry.ID = id.String()
		}

		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}

		if entry.Status == "" {
			entry.Status = models.LogStatusPending
		}

		_, err = tx.ExecContext(ctx, query,
			entry.ID,
			entry.OwnerID,
			entry.WorkflowID,
			entry.LeadID,
			entry.StepID,
			entry.OrderNo,
			entry.Status,
			entry.Attempts,
			entry.Detail,
			entry.ExecutedAt,
			entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert execution log: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PendingAll returns every pending log across all users and workflows.
func (r *ExecutionLogRepository) PendingAll(ctx context.Context) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, owner_id, workflow_id, lead_id, step_id, order_no, status, attempts, detail, executed_at, created_at
		FROM execution_logs
		WHERE status = 'pending'
		ORDER BY created_at ASC
	`

	return r.queryLogs(ctx, query)
}

// ByLead returns all logs for a lead ordered by order number, oldest
// creation first for equal orders.
func (r *ExecutionLogRepository) ByLead(ctx context.Context, leadID string) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, owner_id, workflow_id, lead_id, step_id, order_no, status, attempts, detail, executed_at, created_at
		FROM execution_logs
		WHERE lead_id = $1
		ORDER BY workflow_id ASC, order_no ASC, created_at ASC
	`

	return r.queryLogs(ctx, query, leadID)
}

// MarkDone flips a pending log to done. The WHERE status = 'pending'
// guard makes completion idempotent under concurrent trigger/sweep races.
func (r *ExecutionLogRepository) MarkDone(ctx context.Context, id string, executedAt time.Time, detail string) (bool, error) {
	query := `
		UPDATE execution_logs
		SET status = 'done', executed_at = $2, detail = $3
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, id, executedAt, detail)
	if err != nil {
		return false, fmt.Errorf("failed to mark execution log done: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// IncrementAttempts bumps the attempt counter on a pending log.
func (r *ExecutionLogRepository) IncrementAttempts(ctx context.Context, id string) error {
	query := `UPDATE execution_logs SET attempts = attempts + 1 WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}

	return nil
}

func (r *ExecutionLogRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*models.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var entry models.ExecutionLog

		err := rows.Scan(
			&entry.ID,
			&entry.OwnerID,
			&entry.WorkflowID,
			&entry.LeadID,
			&entry.StepID,
			&entry.OrderNo,
			&entry.Status,
			&entry.Attempts,
			&entry.Detail,
			&entry.ExecutedAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

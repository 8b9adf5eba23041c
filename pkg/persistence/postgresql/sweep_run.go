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

// SweepRunRepository handles sweep run ledger database operations.
type SweepRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSweepRunRepository creates a new sweep run repository.
func NewSweepRunRepository(db *sql.DB, logger *slog.Logger) *SweepRunRepository {
	return &SweepRunRepository{db: db, logger: logger}
}

// Create appends a new ledger entry, normally with status started.
func (r *SweepRunRepository) Create(ctx context.Context, run *models.SweepRun) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate sweep run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	if run.Status == "" {
		run.Status = models.SweepStatusStarted
	}

	query := `
		INSERT INTO sweep_runs (id, status, processed_entities, processed_steps, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.ProcessedEntities,
		run.ProcessedSteps,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sweep run: %w", err)
	}

	return nil
}

// Finish records the single terminal update of a ledger entry.
func (r *SweepRunRepository) Finish(ctx context.Context, run *models.SweepRun) error {
	query := `
		UPDATE sweep_runs
		SET status = $2, processed_entities = $3, processed_steps = $4, error = $5, finished_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.ProcessedEntities,
		run.ProcessedSteps,
		run.Error,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sweep run: %w", err)
	}

	return nil
}

// List returns the most recent ledger entries, newest first.
func (r *SweepRunRepository) List(ctx context.Context, limit int) ([]*models.SweepRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, status, processed_entities, processed_steps, error, started_at, finished_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweep runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := make([]*models.SweepRun, 0)

	for rows.Next() {
		var run models.SweepRun

		err := rows.Scan(
			&run.ID,
			&run.Status,
			&run.ProcessedEntities,
			&run.ProcessedSteps,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweep run: %w", err)
		}

		runs = append(runs, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep runs: %w", err)
	}

	return runs, nil
}

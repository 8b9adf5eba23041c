// Package postgresql provides the PostgreSQL persistence implementation for
// workflows, execution logs and the collaborating record stores.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver
	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo     *WorkflowRepository
	executionLogRepo *ExecutionLogRepository
	sweepRunRepo     *SweepRunRepository
	leadRepo         *LeadRepository
	userRepo         *UserRepository
	templateRepo     *TemplateRepository
	variableRepo     *VariableRepository
	statusChangeRepo *StatusChangeRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger,

		workflowRepo:     NewWorkflowRepository(database, logger),
		executionLogRepo: NewExecutionLogRepository(database, logger),
		sweepRunRepo:     NewSweepRunRepository(database, logger),
		leadRepo:         NewLeadRepository(database),
		userRepo:         NewUserRepository(database),
		templateRepo:     NewTemplateRepository(database),
		variableRepo:     NewVariableRepository(database, logger),
		statusChangeRepo: NewStatusChangeRepository(database),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return p.executionLogRepo
}

func (p *Persistence) SweepRunRepository() persistence.SweepRunRepository {
	return p.sweepRunRepo
}

func (p *Persistence) LeadRepository() persistence.LeadRepository {
	return p.leadRepo
}

func (p *Persistence) UserRepository() persistence.UserRepository {
	return p.userRepo
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) VariableRepository() persistence.VariableRepository {
	return p.variableRepo
}

func (p *Persistence) StatusChangeRepository() persistence.StatusChangeRepository {
	return p.statusChangeRepo
}

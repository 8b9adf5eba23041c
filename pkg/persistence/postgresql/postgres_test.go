package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"status_changes", "user_variables", "message_templates",
		"execution_logs", "workflow_steps", "workflows",
		"sweep_runs", "leads", "users", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("leadline_test"),
			postgres.WithUsername("leadline"),
			postgres.WithPassword("leadline"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"workflows", "workflow_steps", "execution_logs", "sweep_runs", "schema_migrations"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	ownerID := uuid.New().String()
	workflow := &models.Workflow{
		OwnerID:      ownerID,
		Name:         "Welcome sequence",
		Description:  "Greets new leads",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       true,
		Steps: []*models.WorkflowStep{
			{Kind: models.StepSendEmail, Order: 2, Config: json.RawMessage(`{"emailTemplateId": "template-1"}`)},
			{Kind: models.StepWaitDelay, Order: 1, Config: json.RawMessage(`{"delay": 10, "unit": "minutes"}`)},
		},
	}

	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	loaded, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, "Welcome sequence", loaded.Name)
	require.Len(t, loaded.Steps, 2)

	// Steps come back ordered and decoded regardless of insert order.
	assert.Equal(t, models.StepWaitDelay, loaded.Steps[0].Kind)
	require.NotNil(t, loaded.Steps[0].WaitDelay)
	assert.Equal(t, 10, loaded.Steps[0].WaitDelay.Delay)
	assert.Equal(t, models.StepSendEmail, loaded.Steps[1].Kind)
	require.NotNil(t, loaded.Steps[1].SendEmail)
}

func TestWorkflowRepository_SaveReplacesSteps(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := &models.Workflow{
		OwnerID:      uuid.New().String(),
		Name:         "Sequence",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       true,
		Steps: []*models.WorkflowStep{
			{Kind: models.StepWaitDelay, Order: 1, Config: json.RawMessage(`{"delay": 1, "unit": "hours"}`)},
			{Kind: models.StepSendEmail, Order: 2, Config: json.RawMessage(`{"emailTemplateId": "template-1"}`)},
		},
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	workflow.Steps = []*models.WorkflowStep{
		{Kind: models.StepUpdateStatus, Order: 1, Config: json.RawMessage(`{"statusId": "status-contacted"}`)},
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	loaded, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, models.StepUpdateStatus, loaded.Steps[0].Kind)
}

func TestWorkflowRepository_FindActiveByEvent(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	ownerID := uuid.New().String()

	active := &models.Workflow{
		OwnerID:      ownerID,
		Name:         "Active",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       true,
	}
	inactive := &models.Workflow{
		OwnerID:      ownerID,
		Name:         "Inactive",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       false,
	}
	otherEvent := &models.Workflow{
		OwnerID:      ownerID,
		Name:         "Other event",
		TriggerEvent: models.TriggerLeadMarkedAsLost,
		Active:       true,
	}

	for _, wf := range []*models.Workflow{active, inactive, otherEvent} {
		require.NoError(t, store.WorkflowRepository().Save(ctx, wf))
	}

	matching, err := store.WorkflowRepository().FindActiveByEvent(ctx, ownerID, models.TriggerNewLeadCreated)
	require.NoError(t, err)
	require.Len(t, matching, 1)
	assert.Equal(t, active.ID, matching[0].ID)
}

func TestWorkflowRepository_SoftDelete(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := &models.Workflow{
		OwnerID:      uuid.New().String(),
		Name:         "Doomed",
		TriggerEvent: models.TriggerNewLeadCreated,
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))
	require.NoError(t, store.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err := store.WorkflowRepository().GetByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func seedLeadAndWorkflow(ctx context.Context, t *testing.T, store *postgresql.Persistence) (*models.Lead, *models.Workflow) {
	t.Helper()

	ownerID := uuid.New().String()

	require.NoError(t, store.UserRepository().Save(ctx, &models.User{
		ID:                        ownerID,
		Email:                     "owner@example.com",
		SMSBalance:                5,
		EmailNotificationsEnabled: true,
		SMSNotificationsEnabled:   true,
	}))

	lead := &models.Lead{
		ID:       uuid.New().String(),
		OwnerID:  ownerID,
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		StatusID: "status-new",
	}
	require.NoError(t, store.LeadRepository().Save(ctx, lead))

	workflow := &models.Workflow{
		OwnerID:      ownerID,
		Name:         "Sequence",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       true,
		Steps: []*models.WorkflowStep{
			{Kind: models.StepWaitDelay, Order: 1, Config: json.RawMessage(`{"delay": 1, "unit": "hours"}`)},
		},
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	return lead, workflow
}

func TestExecutionLogRepository_ConditionalMarkDone(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	lead, workflow := seedLeadAndWorkflow(ctx, t, store)

	entry := &models.ExecutionLog{
		OwnerID:    workflow.OwnerID,
		WorkflowID: workflow.ID,
		LeadID:     lead.ID,
		StepID:     workflow.Steps[0].ID,
		OrderNo:    1,
	}
	require.NoError(t, store.ExecutionLogRepository().BulkCreate(ctx, []*models.ExecutionLog{entry}))

	executedAt := time.Now().UTC()

	updated, err := store.ExecutionLogRepository().MarkDone(ctx, entry.ID, executedAt, "done once")
	require.NoError(t, err)
	assert.True(t, updated)

	// A second completion attempt must not win.
	updated, err = store.ExecutionLogRepository().MarkDone(ctx, entry.ID, executedAt.Add(time.Minute), "done twice")
	require.NoError(t, err)
	assert.False(t, updated)

	logs, err := store.ExecutionLogRepository().ByLead(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogStatusDone, logs[0].Status)
	assert.Equal(t, "done once", logs[0].Detail)
}

func TestExecutionLogRepository_PendingAllAndAttempts(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	lead, workflow := seedLeadAndWorkflow(ctx, t, store)

	entry := &models.ExecutionLog{
		OwnerID:    workflow.OwnerID,
		WorkflowID: workflow.ID,
		LeadID:     lead.ID,
		StepID:     workflow.Steps[0].ID,
		OrderNo:    1,
	}
	require.NoError(t, store.ExecutionLogRepository().BulkCreate(ctx, []*models.ExecutionLog{entry}))

	pending, err := store.ExecutionLogRepository().PendingAll(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.ExecutionLogRepository().IncrementAttempts(ctx, entry.ID))

	logs, err := store.ExecutionLogRepository().ByLead(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].Attempts)
}

func TestUserRepository_ConditionalDebit(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	lead, _ := seedLeadAndWorkflow(ctx, t, store)

	debited, err := store.UserRepository().DebitSMSBalance(ctx, lead.OwnerID, 3)
	require.NoError(t, err)
	assert.True(t, debited)

	// Remaining balance of 2 cannot cover another 3 segments.
	debited, err = store.UserRepository().DebitSMSBalance(ctx, lead.OwnerID, 3)
	require.NoError(t, err)
	assert.False(t, debited)

	user, err := store.UserRepository().GetByID(ctx, lead.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, 2, user.SMSBalance)
}

func TestSweepRunRepository_Ledger(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	run := &models.SweepRun{}
	require.NoError(t, store.SweepRunRepository().Create(ctx, run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, models.SweepStatusStarted, run.Status)

	finishedAt := time.Now().UTC()
	run.Status = models.SweepStatusCompleted
	run.ProcessedEntities = 3
	run.ProcessedSteps = 7
	run.FinishedAt = &finishedAt

	require.NoError(t, store.SweepRunRepository().Finish(ctx, run))

	runs, err := store.SweepRunRepository().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.SweepStatusCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].ProcessedEntities)
	assert.Equal(t, 7, runs[0].ProcessedSteps)
}

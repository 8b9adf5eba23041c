package web

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/leadline/leadline/pkg/kvstore"
	"github.com/leadline/leadline/pkg/lock"
	"github.com/leadline/leadline/pkg/mocks"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence/memory"
	"github.com/leadline/leadline/pkg/services"
	"github.com/leadline/leadline/pkg/variables"
	"github.com/leadline/leadline/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewPersistence()

	executor := workflow.NewExecutor(store, &mocks.MockMailer{}, &mocks.MockSMSSender{}, logger)
	resolver := variables.NewResolver(store.VariableRepository())
	runner := workflow.NewRunner(store, executor, resolver, logger, nil)
	sweeper := workflow.NewSweeper(store, executor, resolver, logger, nil)

	workflowService := services.NewWorkflow(store)
	automationService := services.NewAutomation(store, runner, sweeper, lock.NewMemoryLocker(), nil, kvstore.NewMemoryStore(), logger)

	handlers := NewAPIHandlers(workflowService, automationService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	app.Get("/workflows", handlers.GetWorkflows)
	app.Post("/workflows", handlers.CreateWorkflow)
	app.Get("/workflows/:id", handlers.GetWorkflow)
	app.Patch("/workflows/:id", handlers.UpdateWorkflow)
	app.Delete("/workflows/:id", handlers.DeleteWorkflow)
	app.Post("/triggers", handlers.FireTrigger)
	app.Post("/sweep", handlers.RunSweep)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func TestCreateWorkflow_HappyPath(t *testing.T) {
	app, _ := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/workflows", fiber.Map{
		"owner_id":      "user-1",
		"name":          "Welcome sequence",
		"trigger_event": "newLeadCreated",
		"active":        true,
		"steps": []fiber.Map{
			{"kind": "waitDelay", "order": 1, "config": fiber.Map{"delay": 10, "unit": "minutes"}},
			{"kind": "sendEmail", "order": 2, "config": fiber.Map{"emailTemplateId": "template-1"}},
		},
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Welcome sequence", created.Name)
	assert.Len(t, created.Steps, 2)
}

func TestCreateWorkflow_ValidationFailure(t *testing.T) {
	app, _ := setupTestApp(t)

	// Name too short.
	req := jsonRequest(t, http.MethodPost, "/workflows", fiber.Map{
		"owner_id":      "user-1",
		"name":          "ab",
		"trigger_event": "newLeadCreated",
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflow_DuplicateOrderRejected(t *testing.T) {
	app, _ := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/workflows", fiber.Map{
		"owner_id":      "user-1",
		"name":          "Broken sequence",
		"trigger_event": "newLeadCreated",
		"steps": []fiber.Map{
			{"kind": "updateStatus", "order": 1, "config": fiber.Map{"statusId": "a"}},
			{"kind": "updateStatus", "order": 1, "config": fiber.Map{"statusId": "b"}},
		},
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateAndDeleteWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	wf := &models.Workflow{
		OwnerID:      "user-1",
		Name:         "Old name here",
		TriggerEvent: models.TriggerNewLeadCreated,
		Active:       true,
	}
	require.NoError(t, store.WorkflowRepository().Save(ctx, wf))

	req := jsonRequest(t, http.MethodPatch, "/workflows/"+wf.ID, fiber.Map{
		"name":   "New name here",
		"active": false,
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "New name here", updated.Name)
	assert.False(t, updated.Active)

	deleteReq := httptest.NewRequest(http.MethodDelete, "/workflows/"+wf.ID, nil)

	deleteResp, err := app.Test(deleteReq)
	require.NoError(t, err)

	defer deleteResp.Body.Close()

	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode)

	_, err = store.WorkflowRepository().GetByID(ctx, wf.ID)
	assert.Error(t, err)
}

func TestListWorkflows_RequiresOwner(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFireTrigger_Accepted(t *testing.T) {
	app, store := setupTestApp(t)
	ctx := context.Background()

	require.NoError(t, store.UserRepository().Save(ctx, &models.User{ID: "user-1"}))
	require.NoError(t, store.LeadRepository().Save(ctx, &models.Lead{ID: "lead-1", OwnerID: "user-1"}))

	req := jsonRequest(t, http.MethodPost, "/triggers", fiber.Map{
		"trigger_event": "newLeadCreated",
		"owner_id":      "user-1",
		"lead_id":       "lead-1",
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestFireTrigger_UnknownEvent(t *testing.T) {
	app, _ := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/triggers", fiber.Map{
		"trigger_event": "meteorStrike",
		"owner_id":      "user-1",
		"lead_id":       "lead-1",
	})

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunSweep_ReturnsCounts(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/sweep", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body SweepResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sweep completed", body.Message)
	assert.Zero(t, body.ProcessedEntities)
	assert.Zero(t, body.ProcessedSteps)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

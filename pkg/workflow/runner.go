package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/otelhelper"
	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/variables"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunContext carries the acting user and triggering lead of one business
// event, plus any trigger-specific extra fields for templating.
type RunContext struct {
	User  *models.User
	Lead  *models.Lead
	Extra map[string]string
}

// Runner materializes execution logs for every workflow matching a
// business event and eagerly drives the executor until a step is not
// ready. Remaining pending logs fall through to the sweeper.
type Runner struct {
	workflows persistence.WorkflowRepository
	logs      persistence.ExecutionLogRepository
	executor  *Executor
	resolver  *variables.Resolver
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewRunner creates a trigger runner.
func NewRunner(
	store persistence.Persistence,
	executor *Executor,
	resolver *variables.Resolver,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Runner {
	return &Runner{
		workflows: store.WorkflowRepository(),
		logs:      store.ExecutionLogRepository(),
		executor:  executor,
		resolver:  resolver,
		logger:    logger.With("module", "trigger_runner"),
		tracer:    tracer,
	}
}

// Run executes the eager pass for one business event. A lack of matching
// workflows is a no-op, not an error.
func (r *Runner) Run(ctx context.Context, event models.TriggerEvent, runCtx RunContext) error {
	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "trigger.run",
			attribute.String(otelhelper.TriggerEventKey, string(event)),
			attribute.String(otelhelper.LeadIDKey, runCtx.Lead.ID),
		)
		defer span.End()
	}

	logger := r.logger.With(
		"trigger_event", event,
		"owner_id", runCtx.User.ID,
		"lead_id", runCtx.Lead.ID,
	)

	matching, err := r.workflows.FindActiveByEvent(ctx, runCtx.User.ID, event)
	if err != nil {
		return fmt.Errorf("failed to find workflows for event %s: %w", event, err)
	}

	if len(matching) == 0 {
		logger.DebugContext(ctx, "No active workflows for event")

		return nil
	}

	vars, err := r.resolver.Resolve(ctx, runCtx.User.ID, runCtx.Lead, runCtx.Extra)
	if err != nil {
		return fmt.Errorf("failed to resolve variables: %w", err)
	}

	for _, wf := range matching {
		err := r.runWorkflow(ctx, wf, runCtx, vars, logger)
		if err != nil {
			// One workflow failing must not stop the others.
			logger.ErrorContext(ctx, "Workflow trigger pass failed",
				"workflow_id", wf.ID,
				"error", err,
			)
		}
	}

	return nil
}

func (r *Runner) runWorkflow(
	ctx context.Context,
	wf *models.Workflow,
	runCtx RunContext,
	vars map[string]string,
	logger *slog.Logger,
) error {
	if len(wf.Steps) == 0 {
		logger.InfoContext(ctx, "Workflow has no steps to execute", "workflow_id", wf.ID)

		return nil
	}

	entries := make([]*models.ExecutionLog, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		entries = append(entries, &models.ExecutionLog{
			OwnerID:    runCtx.User.ID,
			WorkflowID: wf.ID,
			LeadID:     runCtx.Lead.ID,
			StepID:     step.ID,
			OrderNo:    step.Order,
			Status:     models.LogStatusPending,
		})
	}

	if err := r.logs.BulkCreate(ctx, entries); err != nil {
		return fmt.Errorf("failed to create execution logs: %w", err)
	}

	logger.InfoContext(ctx, "Created execution logs",
		"workflow_id", wf.ID,
		"steps", len(entries),
	)

	for i, entry := range entries {
		baseTime := chainBaseTime(entries, i, runCtx.Lead)

		result, err := r.executor.ExecuteStep(ctx, entry, wf.Steps[i], runCtx.Lead, vars, baseTime)
		if err != nil {
			return fmt.Errorf("step %d failed: %w", entry.OrderNo, err)
		}

		if !result.Executed {
			logger.InfoContext(ctx, "Step not ready, leaving chain for the sweeper",
				"workflow_id", wf.ID,
				"order_no", entry.OrderNo,
			)

			break
		}
	}

	return nil
}

// chainBaseTime picks the delay anchor for the log at index: the previous
// log's executedAt, or for the first step the lead's own creation time
// when available.
func chainBaseTime(entries []*models.ExecutionLog, index int, lead *models.Lead) time.Time {
	if index == 0 {
		if lead != nil && !lead.CreatedAt.IsZero() {
			return lead.CreatedAt
		}

		return entries[0].CreatedAt
	}

	previous := entries[index-1]
	if previous.ExecutedAt != nil {
		return *previous.ExecutedAt
	}

	return previous.CreatedAt
}

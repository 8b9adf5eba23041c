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
	"go.opentelemetry.io/otel/trace"
)

// SweepResult reports what one reconciliation pass advanced.
type SweepResult struct {
	ProcessedEntities int `json:"processed_entities"`
	ProcessedSteps    int `json:"processed_steps"`
}

// Sweeper resumes pending execution chains whose preconditions have been
// satisfied since the last pass. Each step's mutation commits
// independently, so a failing sweep never loses earlier progress.
type Sweeper struct {
	workflows persistence.WorkflowRepository
	logs      persistence.ExecutionLogRepository
	sweeps    persistence.SweepRunRepository
	leads     persistence.LeadRepository
	executor  *Executor
	resolver  *variables.Resolver
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(
	store persistence.Persistence,
	executor *Executor,
	resolver *variables.Resolver,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Sweeper {
	return &Sweeper{
		workflows: store.WorkflowRepository(),
		logs:      store.ExecutionLogRepository(),
		sweeps:    store.SweepRunRepository(),
		leads:     store.LeadRepository(),
		executor:  executor,
		resolver:  resolver,
		logger:    logger.With("module", "reconciliation_sweeper"),
		tracer:    tracer,
	}
}

// Sweep runs one stateless reconciliation pass over every pending log,
// recording the pass in the run ledger.
func (s *Sweeper) Sweep(ctx context.Context) (result SweepResult, err error) {
	if s.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "sweep.run")

		defer func() {
			if err != nil {
				otelhelper.SetError(span, err)
			}

			span.End()
		}()
	}

	run := &models.SweepRun{Status: models.SweepStatusStarted}
	if createErr := s.sweeps.Create(ctx, run); createErr != nil {
		return SweepResult{}, fmt.Errorf("failed to open sweep ledger entry: %w", createErr)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("sweep panicked: %v", recovered)
		}

		s.closeRun(ctx, run, result, err)
	}()

	pending, err := s.logs.PendingAll(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to load pending logs: %w", err)
	}

	leadIDs := distinctLeadIDs(pending)

	s.logger.InfoContext(ctx, "Starting sweep",
		"sweep_run_id", run.ID,
		"pending_logs", len(pending),
		"entities", len(leadIDs),
	)

	for _, leadID := range leadIDs {
		advanced, groupErr := s.sweepLead(ctx, leadID)
		if groupErr != nil {
			// One entity's failure must not abort the whole pass.
			s.logger.ErrorContext(ctx, "Failed to sweep entity",
				"lead_id", leadID,
				"error", groupErr,
			)

			continue
		}

		if advanced > 0 {
			result.ProcessedEntities++
			result.ProcessedSteps += advanced
		}
	}

	s.logger.InfoContext(ctx, "Sweep completed",
		"sweep_run_id", run.ID,
		"processed_entities", result.ProcessedEntities,
		"processed_steps", result.ProcessedSteps,
	)

	return result, nil
}

// sweepLead resumes every workflow chain of one lead, returning the
// number of steps advanced.
func (s *Sweeper) sweepLead(ctx context.Context, leadID string) (int, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if persistence.IsLeadNotFound(err) {
			s.logger.WarnContext(ctx, "Lead no longer exists, skipping its pending logs", "lead_id", leadID)

			return 0, nil
		}

		return 0, fmt.Errorf("failed to load lead: %w", err)
	}

	entries, err := s.logs.ByLead(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("failed to load logs for lead: %w", err)
	}

	advanced := 0

	for _, chain := range chainsByWorkflow(entries) {
		count, chainErr := s.sweepChain(ctx, lead, chain)
		advanced += count

		if chainErr != nil {
			return advanced, chainErr
		}
	}

	return advanced, nil
}

// sweepChain walks one (workflow, lead) chain in order, skipping done
// entries and resuming from the first pending one. Done entries serve as
// time anchors for the delays that follow them.
func (s *Sweeper) sweepChain(ctx context.Context, lead *models.Lead, chain []*models.ExecutionLog) (int, error) {
	if len(chain) == 0 {
		return 0, nil
	}

	workflowID := chain[0].WorkflowID

	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			s.logger.WarnContext(ctx, "Workflow no longer exists, skipping chain", "workflow_id", workflowID)

			return 0, nil
		}

		return 0, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	stepsByID := make(map[string]*models.WorkflowStep, len(wf.Steps))
	for _, step := range wf.Steps {
		stepsByID[step.ID] = step
	}

	// Variables are re-resolved per pass: balances, notification flags
	// and lead fields may have changed since trigger time.
	vars, err := s.resolver.Resolve(ctx, chain[0].OwnerID, lead, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve variables: %w", err)
	}

	advanced := 0

	for i, entry := range chain {
		if entry.Done() {
			continue
		}

		if i > 0 && !chain[i-1].Done() {
			// A pending predecessor means the chain cannot advance here.
			return advanced, nil
		}

		baseTime := sweepBaseTime(chain, i)

		step, ok := stepsByID[entry.StepID]
		if !ok {
			s.logger.WarnContext(ctx, "Step definition no longer exists, skipping chain",
				"workflow_id", workflowID,
				"step_id", entry.StepID,
			)

			return advanced, nil
		}

		result, err := s.executor.ExecuteStep(ctx, entry, step, lead, vars, baseTime)
		if err != nil {
			return advanced, fmt.Errorf("step %d failed: %w", entry.OrderNo, err)
		}

		if !result.Executed {
			return advanced, nil
		}

		advanced++
	}

	return advanced, nil
}

// sweepBaseTime picks the delay anchor for the chain entry at index: the
// previous entry's executedAt, or for the first entry its own creation
// time. Delays count from when the trigger fired, not from when the lead
// was created; triggers like a lost-lead event fire long after that.
func sweepBaseTime(chain []*models.ExecutionLog, index int) time.Time {
	if index == 0 {
		return chain[0].CreatedAt
	}

	previous := chain[index-1]
	if previous.ExecutedAt != nil {
		return *previous.ExecutedAt
	}

	return previous.CreatedAt
}

func (s *Sweeper) closeRun(ctx context.Context, run *models.SweepRun, result SweepResult, err error) {
	finishedAt := time.Now().UTC()
	run.FinishedAt = &finishedAt
	run.ProcessedEntities = result.ProcessedEntities
	run.ProcessedSteps = result.ProcessedSteps

	if err != nil {
		run.Status = models.SweepStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = models.SweepStatusCompleted
	}

	if finishErr := s.sweeps.Finish(ctx, run); finishErr != nil {
		s.logger.ErrorContext(ctx, "Failed to close sweep ledger entry",
			"sweep_run_id", run.ID,
			"error", finishErr,
		)
	}
}

// distinctLeadIDs returns the lead IDs of the pending logs in first-seen
// order.
func distinctLeadIDs(entries []*models.ExecutionLog) []string {
	seen := make(map[string]bool, len(entries))
	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !seen[entry.LeadID] {
			seen[entry.LeadID] = true

			ids = append(ids, entry.LeadID)
		}
	}

	return ids
}

// chainsByWorkflow splits a lead's ordered logs into independent
// per-workflow chains, preserving order within each.
func chainsByWorkflow(entries []*models.ExecutionLog) [][]*models.ExecutionLog {
	chains := make([][]*models.ExecutionLog, 0)
	index := make(map[string]int)

	for _, entry := range entries {
		pos, ok := index[entry.WorkflowID]
		if !ok {
			pos = len(chains)
			index[entry.WorkflowID] = pos

			chains = append(chains, nil)
		}

		chains[pos] = append(chains[pos], entry)
	}

	return chains
}

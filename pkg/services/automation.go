package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadline/leadline/pkg/eventbus"
	"github.com/leadline/leadline/pkg/events"
	"github.com/leadline/leadline/pkg/kvstore"
	"github.com/leadline/leadline/pkg/lock"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/workflow"
)

// SweepLockKey is the advisory lock name shared by every sweeper
// deployment.
const SweepLockKey = "leadline:sweep"

// sweepLockTTL bounds how long a crashed sweeper can block the next one.
const sweepLockTTL = 10 * time.Minute

// triggerSeenPrefix keys processed bus events for redelivery dedupe.
const triggerSeenPrefix = "leadline:trigger:seen:"

const triggerSeenTTL = time.Hour

// SweepOutcome is the service-level result of a sweep request.
type SweepOutcome struct {
	Skipped bool
	Message string
	Result  workflow.SweepResult
}

// Automation drives the engine: it fires triggers for business events
// and runs reconciliation sweeps under an advisory lock.
type Automation struct {
	persistence persistence.Persistence
	runner      *workflow.Runner
	sweeper     *workflow.Sweeper
	locker      lock.Locker
	publisher   eventbus.EventPublisher
	seen        kvstore.Store
	logger      *slog.Logger
}

// NewAutomation creates the automation service. The publisher may be nil
// when no bus is configured.
func NewAutomation(
	store persistence.Persistence,
	runner *workflow.Runner,
	sweeper *workflow.Sweeper,
	locker lock.Locker,
	publisher eventbus.EventPublisher,
	seen kvstore.Store,
	logger *slog.Logger,
) *Automation {
	return &Automation{
		persistence: store,
		runner:      runner,
		sweeper:     sweeper,
		locker:      locker,
		publisher:   publisher,
		seen:        seen,
		logger:      logger.With("module", "automation_service"),
	}
}

// HandleTrigger runs the eager trigger pass for one business event.
// Engine failures are logged and swallowed: the business operation that
// fired the trigger must never fail because of automation.
func (a *Automation) HandleTrigger(ctx context.Context, event models.TriggerEvent, ownerID, leadID string, extra map[string]string) {
	user, err := a.persistence.UserRepository().GetByID(ctx, ownerID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to load user for trigger",
			"trigger_event", event,
			"owner_id", ownerID,
			"error", err,
		)

		return
	}

	lead, err := a.persistence.LeadRepository().GetByID(ctx, leadID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to load lead for trigger",
			"trigger_event", event,
			"lead_id", leadID,
			"error", err,
		)

		return
	}

	runCtx := workflow.RunContext{User: user, Lead: lead, Extra: extra}

	if err := a.runner.Run(ctx, event, runCtx); err != nil {
		a.logger.ErrorContext(ctx, "Trigger pass failed",
			"trigger_event", event,
			"lead_id", leadID,
			"error", err,
		)
	}
}

// FireTrigger publishes a trigger event to the bus for asynchronous
// processing. Without a configured bus it falls back to the in-process
// pass.
func (a *Automation) FireTrigger(ctx context.Context, event models.TriggerEvent, ownerID, leadID string, extra map[string]string) error {
	if a.publisher == nil {
		a.HandleTrigger(ctx, event, ownerID, leadID, extra)

		return nil
	}

	triggerEvent := events.NewLeadTriggerFired(ownerID, event, leadID, extra)
	if err := triggerEvent.Validate(); err != nil {
		return fmt.Errorf("invalid trigger event: %w", err)
	}

	if err := a.publisher.Publish(ctx, leadID, triggerEvent); err != nil {
		return fmt.Errorf("failed to publish trigger event: %w", err)
	}

	return nil
}

// RegisterEventHandlers subscribes the automation service to the bus so
// published trigger events drive the runner.
func (a *Automation) RegisterEventHandlers(bus eventbus.EventBus) error {
	return bus.Handle(events.LeadTriggerFiredEvent, func(ctx context.Context, raw interface{}) error {
		event, ok := raw.(*events.LeadTriggerFired)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", raw)
		}

		if a.alreadyProcessed(ctx, event.ID) {
			a.logger.InfoContext(ctx, "Skipping redelivered trigger event", "event_id", event.ID)

			return nil
		}

		a.HandleTrigger(ctx, event.TriggerEvent, event.OwnerID, event.LeadID, event.Extra)

		return nil
	})
}

// alreadyProcessed marks the event as seen and reports whether a prior
// delivery already handled it. The bus may redeliver after a nack or a
// consumer restart; the executor's conditional updates make replays
// harmless, this just avoids the wasted pass.
func (a *Automation) alreadyProcessed(ctx context.Context, eventID string) bool {
	if a.seen == nil || eventID == "" {
		return false
	}

	key := triggerSeenPrefix + eventID

	_, found, err := a.seen.Get(ctx, key)
	if err != nil {
		a.logger.WarnContext(ctx, "Trigger dedupe lookup failed", "event_id", eventID, "error", err)

		return false
	}

	if found {
		return true
	}

	if err := a.seen.Set(ctx, key, "1", triggerSeenTTL); err != nil {
		a.logger.WarnContext(ctx, "Trigger dedupe store failed", "event_id", eventID, "error", err)
	}

	return false
}

// RunSweep runs one reconciliation pass under the advisory lock. When
// another holder owns the lock the sweep is skipped without error.
func (a *Automation) RunSweep(ctx context.Context) (SweepOutcome, error) {
	release, acquired, err := a.locker.Acquire(ctx, SweepLockKey, sweepLockTTL)
	if err != nil {
		return SweepOutcome{}, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}

	if !acquired {
		a.logger.InfoContext(ctx, "Sweep already running elsewhere, skipping")

		return SweepOutcome{Skipped: true, Message: "sweep already running"}, nil
	}

	defer func() {
		if err := release(ctx); err != nil {
			a.logger.ErrorContext(ctx, "Failed to release sweep lock", "error", err)
		}
	}()

	result, sweepErr := a.sweeper.Sweep(ctx)

	a.publishSweepCompleted(ctx, result, sweepErr)

	if sweepErr != nil {
		return SweepOutcome{Result: result}, sweepErr
	}

	return SweepOutcome{Message: "sweep completed", Result: result}, nil
}

// publishSweepCompleted announces the pass on the bus, best effort.
func (a *Automation) publishSweepCompleted(ctx context.Context, result workflow.SweepResult, sweepErr error) {
	if a.publisher == nil {
		return
	}

	runID := ""

	runs, err := a.persistence.SweepRunRepository().List(ctx, 1)
	if err == nil && len(runs) > 0 {
		runID = runs[0].ID
	}

	errMessage := ""
	if sweepErr != nil {
		errMessage = sweepErr.Error()
	}

	event := events.NewSweepCompleted(runID, result.ProcessedEntities, result.ProcessedSteps, errMessage)
	if err := a.publisher.Publish(ctx, runID, event); err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish sweep completion", "error", err)
	}
}

// Package workflow implements the automation engine: the step executor,
// the trigger runner and the reconciliation sweeper.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
	"github.com/leadline/leadline/pkg/transport"
	"github.com/leadline/leadline/pkg/variables"
)

// smsSegmentLength is the provider-defined unit of SMS length/cost.
const smsSegmentLength = 160

// StepResult reports the outcome of one executor invocation. Executed
// means the log reached done; Ready distinguishes a waitDelay or
// resource-exhausted hold (false) from a transient delivery failure
// (true, but not executed).
type StepResult struct {
	Executed bool
	Ready    bool
}

// Executor performs exactly one step's side effect and updates its
// execution log. Every branch is idempotent: a log already done is never
// re-executed, and completion goes through a conditional update.
type Executor struct {
	logs          persistence.ExecutionLogRepository
	leads         persistence.LeadRepository
	users         persistence.UserRepository
	templates     persistence.TemplateRepository
	statusChanges persistence.StatusChangeRepository
	mailer        transport.Mailer
	sms           transport.SMSSender
	logger        *slog.Logger
	now           func() time.Time
}

// NewExecutor creates a step executor over the given stores and transports.
func NewExecutor(
	store persistence.Persistence,
	mailer transport.Mailer,
	sms transport.SMSSender,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		logs:          store.ExecutionLogRepository(),
		leads:         store.LeadRepository(),
		users:         store.UserRepository(),
		templates:     store.TemplateRepository(),
		statusChanges: store.StatusChangeRepository(),
		mailer:        mailer,
		sms:           sms,
		logger:        logger.With("module", "step_executor"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the executor's clock. Tests use this to probe
// waitDelay boundaries.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now

	return e
}

// ExecuteStep runs one step against one pending log. The baseTime is the
// anchor a waitDelay counts from: the previous log's executedAt, or the
// chain's start time for the first step.
func (e *Executor) ExecuteStep(
	ctx context.Context,
	entry *models.ExecutionLog,
	step *models.WorkflowStep,
	lead *models.Lead,
	vars map[string]string,
	baseTime time.Time,
) (StepResult, error) {
	if entry.Done() {
		return StepResult{Executed: true, Ready: true}, nil
	}

	logger := e.logger.With(
		"log_id", entry.ID,
		"workflow_id", entry.WorkflowID,
		"lead_id", entry.LeadID,
		"step_kind", step.Kind,
		"order_no", entry.OrderNo,
	)

	switch step.Kind {
	case models.StepWaitDelay:
		return e.executeWaitDelay(ctx, entry, step, baseTime, logger)
	case models.StepSendEmail:
		return e.executeSendEmail(ctx, entry, step, lead, vars, logger)
	case models.StepSendSMS:
		return e.executeSendSMS(ctx, entry, step, lead, vars, logger)
	case models.StepUpdateStatus:
		return e.executeUpdateStatus(ctx, entry, step, lead, logger)
	default:
		// Fail open: an unknown kind must never wedge the chain.
		logger.WarnContext(ctx, "Unknown step kind, marking done")

		return e.markDone(ctx, entry, "unknown step kind: "+string(step.Kind))
	}
}

func (e *Executor) executeWaitDelay(
	ctx context.Context,
	entry *models.ExecutionLog,
	step *models.WorkflowStep,
	baseTime time.Time,
	logger *slog.Logger,
) (StepResult, error) {
	if step.WaitDelay == nil {
		return e.markDone(ctx, entry, "waitDelay config missing")
	}

	readyAt := baseTime.Add(step.WaitDelay.Duration())
	if e.now().Before(readyAt) {
		logger.DebugContext(ctx, "Delay not elapsed", "ready_at", readyAt)

		return StepResult{}, nil
	}

	return e.markDone(ctx, entry, "")
}

func (e *Executor) executeSendEmail(
	ctx context.Context,
	entry *models.ExecutionLog,
	step *models.WorkflowStep,
	lead *models.Lead,
	vars map[string]string,
	logger *slog.Logger,
) (StepResult, error) {
	if step.SendEmail == nil {
		return e.markDone(ctx, entry, "sendEmail config missing")
	}

	if lead.Email == "" {
		// Retrying can never succeed, so the sequence must not stall.
		logger.InfoContext(ctx, "Lead has no email address, skipping send")

		return e.markDone(ctx, entry, "no email address")
	}

	user, err := e.users.GetByID(ctx, entry.OwnerID)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to load user %s: %w", entry.OwnerID, err)
	}

	if !user.EmailNotificationsEnabled {
		logger.InfoContext(ctx, "Email notifications disabled, soft skipping")

		return e.markDone(ctx, entry, "skipped: email notifications disabled")
	}

	template, err := e.templates.GetByID(ctx, step.SendEmail.EmailTemplateID)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			logger.WarnContext(ctx, "Email template not found, marking done",
				"template_id", step.SendEmail.EmailTemplateID)

			return e.markDone(ctx, entry, "email template not found")
		}

		return StepResult{}, fmt.Errorf("failed to load email template: %w", err)
	}

	email := transport.Email{
		To:          lead.Email,
		Subject:     variables.Substitute(template.Subject, vars),
		Text:        variables.Substitute(template.Body, vars),
		Attachments: template.Attachments,
	}

	_, err = e.mailer.Send(ctx, email)
	if err != nil {
		// Delivery failures are transient: keep the log pending so a
		// later sweep retries the send.
		logger.ErrorContext(ctx, "Email transport failed, log stays pending", "error", err)

		if attemptErr := e.logs.IncrementAttempts(ctx, entry.ID); attemptErr != nil {
			logger.ErrorContext(ctx, "Failed to record attempt", "error", attemptErr)
		}

		return StepResult{Ready: true}, nil
	}

	return e.markDone(ctx, entry, "email sent")
}

func (e *Executor) executeSendSMS(
	ctx context.Context,
	entry *models.ExecutionLog,
	step *models.WorkflowStep,
	lead *models.Lead,
	vars map[string]string,
	logger *slog.Logger,
) (StepResult, error) {
	if step.SendSMS == nil {
		return e.markDone(ctx, entry, "sendSms config missing")
	}

	if lead.Phone == "" {
		logger.InfoContext(ctx, "Lead has no phone number, skipping send")

		return e.markDone(ctx, entry, "no phone number")
	}

	user, err := e.users.GetByID(ctx, entry.OwnerID)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to load user %s: %w", entry.OwnerID, err)
	}

	template, err := e.templates.GetByID(ctx, step.SendSMS.SMSTemplateID)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			logger.WarnContext(ctx, "SMS template not found, marking done",
				"template_id", step.SendSMS.SMSTemplateID)

			return e.markDone(ctx, entry, "sms template not found")
		}

		return StepResult{}, fmt.Errorf("failed to load sms template: %w", err)
	}

	message := variables.Substitute(template.Body, vars)
	estimatedSegments := segmentCount(message)

	if user.SMSBalance < estimatedSegments {
		// Resource exhausted: stay pending until the balance covers the
		// message, then a later sweep sends exactly once.
		logger.InfoContext(ctx, "Insufficient SMS balance, log stays pending",
			"balance", user.SMSBalance,
			"required", estimatedSegments,
		)

		if attemptErr := e.logs.IncrementAttempts(ctx, entry.ID); attemptErr != nil {
			logger.ErrorContext(ctx, "Failed to record attempt", "error", attemptErr)
		}

		return StepResult{}, nil
	}

	if !user.SMSNotificationsEnabled {
		logger.InfoContext(ctx, "SMS notifications disabled, soft skipping")

		return e.markDone(ctx, entry, "skipped: sms notifications disabled")
	}

	result, err := e.sms.Send(ctx, transport.SMS{
		To:      lead.Phone,
		Message: message,
		From:    step.SendSMS.Sender,
	})
	if err != nil {
		logger.ErrorContext(ctx, "SMS transport failed, log stays pending", "error", err)

		if attemptErr := e.logs.IncrementAttempts(ctx, entry.ID); attemptErr != nil {
			logger.ErrorContext(ctx, "Failed to record attempt", "error", attemptErr)
		}

		return StepResult{Ready: true}, nil
	}

	cost := result.Segments()
	if cost == 0 {
		cost = estimatedSegments
	}

	debited, err := e.users.DebitSMSBalance(ctx, user.ID, cost)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to debit SMS balance: %w", err)
	}

	if !debited {
		// The message already went out; the balance moved underneath us.
		logger.WarnContext(ctx, "SMS sent but balance debit failed",
			"user_id", user.ID,
			"cost", cost,
		)
	}

	return e.markDone(ctx, entry, fmt.Sprintf("sms sent, %d segments", cost))
}

func (e *Executor) executeUpdateStatus(
	ctx context.Context,
	entry *models.ExecutionLog,
	step *models.WorkflowStep,
	lead *models.Lead,
	logger *slog.Logger,
) (StepResult, error) {
	if step.UpdateStatus == nil || step.UpdateStatus.StatusID == "" {
		return e.markDone(ctx, entry, "no status configured")
	}

	statusID := step.UpdateStatus.StatusID

	err := e.leads.UpdateStatus(ctx, lead.ID, statusID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to update lead status, log stays pending", "error", err)

		if attemptErr := e.logs.IncrementAttempts(ctx, entry.ID); attemptErr != nil {
			logger.ErrorContext(ctx, "Failed to record attempt", "error", attemptErr)
		}

		return StepResult{Ready: true}, nil
	}

	change := &models.StatusChange{
		LeadID:       lead.ID,
		FromStatusID: lead.StatusID,
		ToStatusID:   statusID,
		ChangedBy:    entry.OwnerID,
	}

	if err := e.statusChanges.Create(ctx, change); err != nil {
		logger.ErrorContext(ctx, "Failed to write status change audit row", "error", err)
	}

	lead.StatusID = statusID

	return e.markDone(ctx, entry, "status updated to "+statusID)
}

func (e *Executor) markDone(ctx context.Context, entry *models.ExecutionLog, detail string) (StepResult, error) {
	executedAt := e.now()

	updated, err := e.logs.MarkDone(ctx, entry.ID, executedAt, detail)
	if err != nil {
		return StepResult{}, fmt.Errorf("failed to mark log done: %w", err)
	}

	if updated {
		entry.Status = models.LogStatusDone
		entry.ExecutedAt = &executedAt
		entry.Detail = detail
	}

	return StepResult{Executed: true, Ready: true}, nil
}

// segmentCount computes the prepaid segments a message requires.
func segmentCount(message string) int {
	length := utf8.RuneCountInString(message)
	if length == 0 {
		return 0
	}

	return (length + smsSegmentLength - 1) / smsSegmentLength
}

package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/leadline/leadline/pkg/mocks"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence/memory"
	"github.com/leadline/leadline/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type executorFixture struct {
	store    *memory.Persistence
	executor *Executor
	mailer   *mocks.MockMailer
	sms      *mocks.MockSMSSender
	user     *models.User
	lead     *models.Lead
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store := memory.NewPersistence()
	mailer := &mocks.MockMailer{}
	sms := &mocks.MockSMSSender{}

	user := &models.User{
		ID:                        "user-1",
		Email:                     "owner@example.com",
		SMSBalance:                10,
		EmailNotificationsEnabled: true,
		SMSNotificationsEnabled:   true,
	}
	require.NoError(t, store.UserRepository().Save(ctx, user))

	lead := &models.Lead{
		ID:       "lead-1",
		OwnerID:  user.ID,
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Phone:    "+15550001111",
		StatusID: "status-new",
	}
	require.NoError(t, store.LeadRepository().Save(ctx, lead))

	return &executorFixture{
		store:    store,
		executor: NewExecutor(store, mailer, sms, logger),
		mailer:   mailer,
		sms:      sms,
		user:     user,
		lead:     lead,
	}
}

func (f *executorFixture) pendingEntry(t *testing.T, step *models.WorkflowStep) *models.ExecutionLog {
	t.Helper()

	entry := &models.ExecutionLog{
		OwnerID:    f.user.ID,
		WorkflowID: "workflow-1",
		LeadID:     f.lead.ID,
		StepID:     step.ID,
		OrderNo:    step.Order,
		Status:     models.LogStatusPending,
	}
	require.NoError(t, f.store.ExecutionLogRepository().BulkCreate(context.Background(), []*models.ExecutionLog{entry}))

	return entry
}

func (f *executorFixture) saveTemplate(t *testing.T, template *models.MessageTemplate) {
	t.Helper()
	require.NoError(t, f.store.TemplateRepository().Save(context.Background(), template))
}

func waitDelayStep(delay int, unit models.DelayUnit) *models.WorkflowStep {
	return &models.WorkflowStep{
		ID:        "step-delay",
		Kind:      models.StepWaitDelay,
		Order:     1,
		WaitDelay: &models.WaitDelayConfig{Delay: delay, Unit: unit},
	}
}

func TestExecuteStep_WaitDelayNotElapsed(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	baseTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixture.executor.WithClock(func() time.Time { return baseTime.Add(9*time.Minute + 59*time.Second) })

	step := waitDelayStep(10, models.DelayMinutes)
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, baseTime)
	require.NoError(t, err)

	assert.False(t, result.Executed)
	assert.False(t, result.Ready)
	assert.Equal(t, models.LogStatusPending, entry.Status)
}

func TestExecuteStep_WaitDelayElapsed(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	baseTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	executedAt := baseTime.Add(10 * time.Minute)
	fixture.executor.WithClock(func() time.Time { return executedAt })

	step := waitDelayStep(10, models.DelayMinutes)
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, baseTime)
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, models.LogStatusDone, entry.Status)
	require.NotNil(t, entry.ExecutedAt)
	assert.Equal(t, executedAt, *entry.ExecutedAt)
}

func TestExecuteStep_DoneEntryIsNotReExecuted(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	step := &models.WorkflowStep{
		ID:        "step-email",
		Kind:      models.StepSendEmail,
		Order:     1,
		SendEmail: &models.SendEmailConfig{EmailTemplateID: "template-1"},
	}
	entry := fixture.pendingEntry(t, step)
	entry.Status = models.LogStatusDone

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	fixture.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestExecuteStep_SendEmailSubstitutesVariables(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.saveTemplate(t, &models.MessageTemplate{
		ID:      "template-1",
		OwnerID: fixture.user.ID,
		Kind:    models.TemplateEmail,
		Subject: "Welcome {{lead_full_name}}",
		Body:    "Hi {{lead_full_name}}, your id is {{lead_id}} and {{unknown}} stays.",
	})

	var sent transport.Email

	fixture.mailer.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent, _ = args.Get(1).(transport.Email) }).
		Return(transport.DeliveryInfo{MessageID: "msg-1"}, nil)

	step := &models.WorkflowStep{
		ID:        "step-email",
		Kind:      models.StepSendEmail,
		Order:     1,
		SendEmail: &models.SendEmailConfig{EmailTemplateID: "template-1"},
	}
	entry := fixture.pendingEntry(t, step)

	vars := map[string]string{"lead_full_name": "Ada Lovelace", "lead_id": "lead-1"}

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, vars, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "ada@example.com", sent.To)
	assert.Equal(t, "Welcome Ada Lovelace", sent.Subject)
	assert.Equal(t, "Hi Ada Lovelace, your id is lead-1 and {{unknown}} stays.", sent.Text)
	assert.Equal(t, models.LogStatusDone, entry.Status)
}

func TestExecuteStep_SendEmailWithoutAddressCompletes(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	fixture.lead.Email = ""

	step := &models.WorkflowStep{
		ID:        "step-email",
		Kind:      models.StepSendEmail,
		Order:     1,
		SendEmail: &models.SendEmailConfig{EmailTemplateID: "template-1"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "no email address", entry.Detail)
	fixture.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestExecuteStep_SendEmailDisabledSoftSkips(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.user.EmailNotificationsEnabled = false
	require.NoError(t, fixture.store.UserRepository().Save(ctx, fixture.user))

	step := &models.WorkflowStep{
		ID:        "step-email",
		Kind:      models.StepSendEmail,
		Order:     1,
		SendEmail: &models.SendEmailConfig{EmailTemplateID: "template-1"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "skipped: email notifications disabled", entry.Detail)
	fixture.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestExecuteStep_SendEmailTransportFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.saveTemplate(t, &models.MessageTemplate{
		ID:      "template-1",
		OwnerID: fixture.user.ID,
		Kind:    models.TemplateEmail,
		Subject: "Hello",
		Body:    "World",
	})

	fixture.mailer.On("Send", mock.Anything, mock.Anything).
		Return(transport.DeliveryInfo{}, errors.New("smtp unavailable"))

	step := &models.WorkflowStep{
		ID:        "step-email",
		Kind:      models.StepSendEmail,
		Order:     1,
		SendEmail: &models.SendEmailConfig{EmailTemplateID: "template-1"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.False(t, result.Executed)
	assert.True(t, result.Ready)

	// The stored log keeps its pending status and records the attempt.
	stored, err := fixture.store.ExecutionLogRepository().ByLead(ctx, fixture.lead.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.LogStatusPending, stored[0].Status)
	assert.Equal(t, 1, stored[0].Attempts)
}

func TestExecuteStep_SendSMSInsufficientBalanceStaysPending(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.user.SMSBalance = 1
	require.NoError(t, fixture.store.UserRepository().Save(ctx, fixture.user))

	// 200 characters means two segments, more than the balance covers.
	fixture.saveTemplate(t, &models.MessageTemplate{
		ID:      "template-sms",
		OwnerID: fixture.user.ID,
		Kind:    models.TemplateSMS,
		Body:    strings.Repeat("a", 200),
	})

	step := &models.WorkflowStep{
		ID:      "step-sms",
		Kind:    models.StepSendSMS,
		Order:   1,
		SendSMS: &models.SendSMSConfig{SMSTemplateID: "template-sms"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.False(t, result.Executed)
	assert.False(t, result.Ready)
	fixture.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	stored, err := fixture.store.ExecutionLogRepository().ByLead(ctx, fixture.lead.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, stored[0].Attempts)
}

func TestExecuteStep_SendSMSDebitsSegments(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.saveTemplate(t, &models.MessageTemplate{
		ID:      "template-sms",
		OwnerID: fixture.user.ID,
		Kind:    models.TemplateSMS,
		Body:    strings.Repeat("a", 200),
	})

	fixture.sms.On("Send", mock.Anything, mock.Anything).
		Return(transport.SMSResult{Usage: map[string]int{"US": 2}}, nil)

	step := &models.WorkflowStep{
		ID:      "step-sms",
		Kind:    models.StepSendSMS,
		Order:   1,
		SendSMS: &models.SendSMSConfig{SMSTemplateID: "template-sms", Sender: "LeadLine"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "sms sent, 2 segments", entry.Detail)

	user, err := fixture.store.UserRepository().GetByID(ctx, fixture.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, user.SMSBalance)
}

func TestExecuteStep_SendSMSDisabledDoesNotDebit(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	fixture.user.SMSNotificationsEnabled = false
	require.NoError(t, fixture.store.UserRepository().Save(ctx, fixture.user))

	fixture.saveTemplate(t, &models.MessageTemplate{
		ID:      "template-sms",
		OwnerID: fixture.user.ID,
		Kind:    models.TemplateSMS,
		Body:    "short message",
	})

	step := &models.WorkflowStep{
		ID:      "step-sms",
		Kind:    models.StepSendSMS,
		Order:   1,
		SendSMS: &models.SendSMSConfig{SMSTemplateID: "template-sms"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "skipped: sms notifications disabled", entry.Detail)
	fixture.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	user, err := fixture.store.UserRepository().GetByID(ctx, fixture.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, user.SMSBalance)
}

func TestExecuteStep_SendSMSWithoutPhoneCompletes(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)
	fixture.lead.Phone = ""

	step := &models.WorkflowStep{
		ID:      "step-sms",
		Kind:    models.StepSendSMS,
		Order:   1,
		SendSMS: &models.SendSMSConfig{SMSTemplateID: "template-sms"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "no phone number", entry.Detail)
	fixture.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestExecuteStep_UpdateStatusWritesAuditRow(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	step := &models.WorkflowStep{
		ID:           "step-status",
		Kind:         models.StepUpdateStatus,
		Order:        1,
		UpdateStatus: &models.UpdateStatusConfig{StatusID: "status-contacted"},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "status-contacted", fixture.lead.StatusID)

	stored, err := fixture.store.LeadRepository().GetByID(ctx, fixture.lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "status-contacted", stored.StatusID)

	changes := fixture.store.StatusChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, "status-new", changes[0].FromStatusID)
	assert.Equal(t, "status-contacted", changes[0].ToStatusID)
	assert.Equal(t, fixture.user.ID, changes[0].ChangedBy)
}

func TestExecuteStep_UpdateStatusWithoutTargetIsNoOp(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	step := &models.WorkflowStep{
		ID:           "step-status",
		Kind:         models.StepUpdateStatus,
		Order:        1,
		UpdateStatus: &models.UpdateStatusConfig{},
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, "status-new", fixture.lead.StatusID)
	assert.Empty(t, fixture.store.StatusChanges())
}

func TestExecuteStep_UnknownKindFailsOpen(t *testing.T) {
	ctx := context.Background()
	fixture := newExecutorFixture(t)

	step := &models.WorkflowStep{
		ID:    "step-mystery",
		Kind:  models.StepKind("launchRocket"),
		Order: 1,
	}
	entry := fixture.pendingEntry(t, step)

	result, err := fixture.executor.ExecuteStep(ctx, entry, step, fixture.lead, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, result.Executed)
	assert.Equal(t, models.LogStatusDone, entry.Status)
	assert.Equal(t, "unknown step kind: launchRocket", entry.Detail)
}

func TestSegmentCount(t *testing.T) {
	assert.Equal(t, 0, segmentCount(""))
	assert.Equal(t, 1, segmentCount("hello"))
	assert.Equal(t, 1, segmentCount(strings.Repeat("a", 160)))
	assert.Equal(t, 2, segmentCount(strings.Repeat("a", 161)))
	// Multi-byte runes count as characters, not bytes.
	assert.Equal(t, 1, segmentCount(strings.Repeat("é", 160)))
}

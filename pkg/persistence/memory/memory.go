// Package memory provides an in-memory persistence implementation used by
// unit tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface with
// mutex-guarded maps.
type Persistence struct {
	mu sync.Mutex

	workflows     map[string]*models.Workflow
	logs          map[string]*models.ExecutionLog
	sweepRuns     map[string]*models.SweepRun
	leads         map[string]*models.Lead
	users         map[string]*models.User
	templates     map[string]*models.MessageTemplate
	variables     map[string]map[string]string
	statusChanges []*models.StatusChange
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows: make(map[string]*models.Workflow),
		logs:      make(map[string]*models.ExecutionLog),
		sweepRuns: make(map[string]*models.SweepRun),
		leads:     make(map[string]*models.Lead),
		users:     make(map[string]*models.User),
		templates: make(map[string]*models.MessageTemplate),
		variables: make(map[string]map[string]string),
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &workflowRepository{p: p}
}

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return &executionLogRepository{p: p}
}

func (p *Persistence) SweepRunRepository() persistence.SweepRunRepository {
	return &sweepRunRepository{p: p}
}

func (p *Persistence) LeadRepository() persistence.LeadRepository {
	return &leadRepository{p: p}
}

func (p *Persistence) UserRepository() persistence.UserRepository {
	return &userRepository{p: p}
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return &templateRepository{p: p}
}

func (p *Persistence) VariableRepository() persistence.VariableRepository {
	return &variableRepository{p: p}
}

func (p *Persistence) StatusChangeRepository() persistence.StatusChangeRepository {
	return &statusChangeRepository{p: p}
}

// StatusChanges returns a snapshot of the audit rows, for test assertions.
func (p *Persistence) StatusChanges() []*models.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*models.StatusChange, len(p.statusChanges))
	copy(out, p.statusChanges)

	return out
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) List(_ context.Context, ownerID string) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.Workflow, 0)

	for _, workflow := range r.p.workflows {
		if workflow.OwnerID == ownerID && workflow.DeletedAt == nil {
			out = append(out, copyWorkflow(workflow))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return copyWorkflow(workflow), nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = newID()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = newID()
		}

		step.WorkflowID = workflow.ID

		if err := step.DecodeConfig(); err != nil {
			return err
		}
	}

	r.p.workflows[workflow.ID] = copyWorkflow(workflow)

	return nil
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok || workflow.DeletedAt != nil {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now

	return nil
}

func (r *workflowRepository) FindActiveByEvent(_ context.Context, ownerID string, event models.TriggerEvent) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.Workflow, 0)

	for _, workflow := range r.p.workflows {
		if workflow.OwnerID == ownerID &&
			workflow.TriggerEvent == event &&
			workflow.Active &&
			workflow.DeletedAt == nil {
			out = append(out, copyWorkflow(workflow))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func copyWorkflow(workflow *models.Workflow) *models.Workflow {
	clone := *workflow

	clone.Steps = make([]*models.WorkflowStep, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		stepClone := *step
		clone.Steps = append(clone.Steps, &stepClone)
	}

	sort.Slice(clone.Steps, func(i, j int) bool {
		return clone.Steps[i].Order < clone.Steps[j].Order
	})

	return &clone
}

type executionLogRepository struct {
	p *Persistence
}

func (r *executionLogRepository) BulkCreate(_ context.Context, logs []*models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	for _, entry := range logs {
		if entry.ID == "" {
			entry.ID = newID()
		}

		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}

		if entry.Status == "" {
			entry.Status = models.LogStatusPending
		}

		clone := *entry
		r.p.logs[entry.ID] = &clone
	}

	return nil
}

func (r *executionLogRepository) PendingAll(_ context.Context) ([]*models.ExecutionLog, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.ExecutionLog, 0)

	for _, entry := range r.p.logs {
		if entry.Status == models.LogStatusPending {
			clone := *entry
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *executionLogRepository) ByLead(_ context.Context, leadID string) ([]*models.ExecutionLog, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.ExecutionLog, 0)

	for _, entry := range r.p.logs {
		if entry.LeadID == leadID {
			clone := *entry
			out = append(out, &clone)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkflowID != out[j].WorkflowID {
			return out[i].WorkflowID < out[j].WorkflowID
		}

		if out[i].OrderNo != out[j].OrderNo {
			return out[i].OrderNo < out[j].OrderNo
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (r *executionLogRepository) MarkDone(_ context.Context, id string, executedAt time.Time, detail string) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	entry, ok := r.p.logs[id]
	if !ok || entry.Status != models.LogStatusPending {
		return false, nil
	}

	entry.Status = models.LogStatusDone
	entry.ExecutedAt = &executedAt
	entry.Detail = detail

	return true, nil
}

func (r *executionLogRepository) IncrementAttempts(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if entry, ok := r.p.logs[id]; ok {
		entry.Attempts++
	}

	return nil
}

type sweepRunRepository struct {
	p *Persistence
}

func (r *sweepRunRepository) Create(_ context.Context, run *models.SweepRun) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if run.ID == "" {
		run.ID = newID()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	if run.Status == "" {
		run.Status = models.SweepStatusStarted
	}

	clone := *run
	r.p.sweepRuns[run.ID] = &clone

	return nil
}

func (r *sweepRunRepository) Finish(_ context.Context, run *models.SweepRun) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.sweepRuns[run.ID]; !ok {
		return persistence.ErrSweepRunNotFound
	}

	clone := *run
	r.p.sweepRuns[run.ID] = &clone

	return nil
}

func (r *sweepRunRepository) List(_ context.Context, limit int) ([]*models.SweepRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.SweepRun, 0, len(r.p.sweepRuns))

	for _, run := range r.p.sweepRuns {
		clone := *run
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

type leadRepository struct {
	p *Persistence
}

func (r *leadRepository) GetByID(_ context.Context, id string) (*models.Lead, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	lead, ok := r.p.leads[id]
	if !ok {
		return nil, persistence.ErrLeadNotFound
	}

	clone := *lead

	return &clone, nil
}

func (r *leadRepository) Save(_ context.Context, lead *models.Lead) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	clone := *lead
	r.p.leads[lead.ID] = &clone

	return nil
}

func (r *leadRepository) UpdateStatus(_ context.Context, id, statusID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	lead, ok := r.p.leads[id]
	if !ok {
		return persistence.ErrLeadNotFound
	}

	lead.StatusID = statusID
	lead.UpdatedAt = time.Now().UTC()

	return nil
}

type userRepository struct {
	p *Persistence
}

func (r *userRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	user, ok := r.p.users[id]
	if !ok {
		return nil, persistence.ErrUserNotFound
	}

	clone := *user

	return &clone, nil
}

func (r *userRepository) Save(_ context.Context, user *models.User) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	user.UpdatedAt = now

	clone := *user
	r.p.users[user.ID] = &clone

	return nil
}

func (r *userRepository) DebitSMSBalance(_ context.Context, id string, amount int) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	user, ok := r.p.users[id]
	if !ok {
		return false, persistence.ErrUserNotFound
	}

	if user.SMSBalance < amount {
		return false, nil
	}

	user.SMSBalance -= amount
	user.UpdatedAt = time.Now().UTC()

	return true, nil
}

type templateRepository struct {
	p *Persistence
}

func (r *templateRepository) GetByID(_ context.Context, id string) (*models.MessageTemplate, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	template, ok := r.p.templates[id]
	if !ok {
		return nil, persistence.ErrTemplateNotFound
	}

	clone := *template

	return &clone, nil
}

func (r *templateRepository) Save(_ context.Context, template *models.MessageTemplate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if template.ID == "" {
		template.ID = newID()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	clone := *template
	r.p.templates[template.ID] = &clone

	return nil
}

type variableRepository struct {
	p *Persistence
}

func (r *variableRepository) ForUser(_ context.Context, userID string) ([]*models.UserVariable, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.UserVariable, 0)

	for key, value := range r.p.variables[userID] {
		out = append(out, &models.UserVariable{UserID: userID, Key: key, Value: value})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})

	return out, nil
}

func (r *variableRepository) Save(_ context.Context, variable *models.UserVariable) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if r.p.variables[variable.UserID] == nil {
		r.p.variables[variable.UserID] = make(map[string]string)
	}

	r.p.variables[variable.UserID][variable.Key] = variable.Value

	return nil
}

type statusChangeRepository struct {
	p *Persistence
}

func (r *statusChangeRepository) Create(_ context.Context, change *models.StatusChange) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if change.ID == "" {
		change.ID = newID()
	}

	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}

	clone := *change
	r.p.statusChanges = append(r.p.statusChanges, &clone)

	return nil
}

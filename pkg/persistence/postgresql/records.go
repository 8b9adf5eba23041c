package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
)

// LeadRepository handles lead record store operations.
type LeadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `
		SELECT id, owner_id, full_name, email, phone, status_id, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var lead models.Lead

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.OwnerID,
		&lead.FullName,
		&lead.Email,
		&lead.Phone,
		&lead.StatusID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLeadNotFound
		}

		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	return &lead, nil
}

func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	query := `
		INSERT INTO leads (id, owner_id, full_name, email, phone, status_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			status_id = EXCLUDED.status_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		lead.ID,
		lead.OwnerID,
		lead.FullName,
		lead.Email,
		lead.Phone,
		lead.StatusID,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}

	return nil
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id, statusID string) error {
	query := `UPDATE leads SET status_id = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, statusID)
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrLeadNotFound
	}

	return nil
}

// UserRepository handles user record store operations.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, sms_balance, email_notifications_enabled, sms_notifications_enabled, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.SMSBalance,
		&user.EmailNotificationsEnabled,
		&user.SMSNotificationsEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, sms_balance, email_notifications_enabled, sms_notifications_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			sms_balance = EXCLUDED.sms_balance,
			email_notifications_enabled = EXCLUDED.email_notifications_enabled,
			sms_notifications_enabled = EXCLUDED.sms_notifications_enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.SMSBalance,
		user.EmailNotificationsEnabled,
		user.SMSNotificationsEnabled,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// DebitSMSBalance deducts amount only when the balance covers it, so a
// concurrent trigger and sweep cannot over-deduct.
func (r *UserRepository) DebitSMSBalance(ctx context.Context, id string, amount int) (bool, error) {
	query := `
		UPDATE users
		SET sms_balance = sms_balance - $2, updated_at = NOW()
		WHERE id = $1 AND sms_balance >= $2
	`

	result, err := r.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit SMS balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// TemplateRepository handles message template operations.
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.MessageTemplate, error) {
	query := `
		SELECT id, owner_id, kind, name, subject, body, attachments, created_at, updated_at
		FROM message_templates
		WHERE id = $1
	`

	var (
		template        models.MessageTemplate
		attachmentsJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&template.ID,
		&template.OwnerID,
		&template.Kind,
		&template.Name,
		&template.Subject,
		&template.Body,
		&attachmentsJSON,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if attachmentsJSON != nil {
		err := json.Unmarshal(attachmentsJSON, &template.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	return &template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.MessageTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	attachmentsJSON, err := json.Marshal(template.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		INSERT INTO message_templates (id, owner_id, kind, name, subject, body, attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			attachments = EXCLUDED.attachments,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.OwnerID,
		template.Kind,
		template.Name,
		template.Subject,
		template.Body,
		attachmentsJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

// VariableRepository handles per-user custom variables.
type VariableRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVariableRepository creates a new variable repository.
func NewVariableRepository(db *sql.DB, logger *slog.Logger) *VariableRepository {
	return &VariableRepository{db: db, logger: logger}
}

func (r *VariableRepository) ForUser(ctx context.Context, userID string) ([]*models.UserVariable, error) {
	query := `SELECT user_id, key, value FROM user_variables WHERE user_id = $1 ORDER BY key ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user variables: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	variables := make([]*models.UserVariable, 0)

	for rows.Next() {
		var variable models.UserVariable

		err := rows.Scan(&variable.UserID, &variable.Key, &variable.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user variable: %w", err)
		}

		variables = append(variables, &variable)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user variables: %w", err)
	}

	return variables, nil
}

func (r *VariableRepository) Save(ctx context.Context, variable *models.UserVariable) error {
	query := `
		INSERT INTO user_variables (user_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value
	`

	_, err := r.db.ExecContext(ctx, query, variable.UserID, variable.Key, variable.Value)
	if err != nil {
		return fmt.Errorf("failed to save user variable: %w", err)
	}

	return nil
}

// StatusChangeRepository appends status-change audit rows.
type StatusChangeRepository struct {
	db *sql.DB
}

// NewStatusChangeRepository creates a new status change repository.
func NewStatusChangeRepository(db *sql.DB) *StatusChangeRepository {
	return &StatusChangeRepository{db: db}
}

func (r *StatusChangeRepository) Create(ctx context.Context, change *models.StatusChange) error {
	if change.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate status change ID: %w", err)
		}

		change.ID = id.String()
	}

	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO status_changes (id, lead_id, from_status_id, to_status_id, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		change.ID,
		change.LeadID,
		change.FromStatusID,
		change.ToStatusID,
		change.ChangedBy,
		change.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create status change: %w", err)
	}

	return nil
}

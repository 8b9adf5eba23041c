package models

import "time"

// User is the acting account that owns workflows, templates and the
// prepaid SMS balance drawn on by sendSms steps.
type User struct {
	ID                        string    `json:"id"`
	Email                     string    `json:"email"`
	SMSBalance                int       `json:"sms_balance"`
	EmailNotificationsEnabled bool      `json:"email_notifications_enabled"`
	SMSNotificationsEnabled   bool      `json:"sms_notifications_enabled"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// UserVariable is one user-defined key/value pair merged into the
// variable map ahead of lead fields.
type UserVariable struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

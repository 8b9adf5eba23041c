package models

import "time"

// TemplateKind distinguishes email from SMS message templates.
type TemplateKind string

const (
	TemplateEmail TemplateKind = "email"
	TemplateSMS   TemplateKind = "sms"
)

// MessageTemplate is a user-owned message body with {{variable}}
// placeholders, referenced by sendEmail and sendSms step configs.
type MessageTemplate struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Kind        TemplateKind `json:"kind"`
	Name        string       `json:"name"`
	Subject     string       `json:"subject,omitempty"`
	Body        string       `json:"body"`
	Attachments []string     `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

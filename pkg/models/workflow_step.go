package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepKind discriminates the per-step config payload.
type StepKind string

const (
	StepWaitDelay    StepKind = "waitDelay"
	StepSendEmail    StepKind = "sendEmail"
	StepSendSMS      StepKind = "sendSms"
	StepUpdateStatus StepKind = "updateStatus"
)

// DelayUnit is the time unit of a waitDelay step.
type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

// WorkflowStep is one action in a workflow's ordered sequence. Config is
// the raw payload as stored; the decoded variant is populated once by
// DecodeConfig and is the only thing the engine reads.
type WorkflowStep struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Kind       StepKind        `json:"kind"  validate:"required"`
	Order      int             `json:"order" validate:"required,min=1"`
	Config     json.RawMessage `json:"config"`

	// Exactly one of these is non-nil after DecodeConfig, matching Kind.
	WaitDelay    *WaitDelayConfig    `json:"-"`
	SendEmail    *SendEmailConfig    `json:"-"`
	SendSMS      *SendSMSConfig      `json:"-"`
	UpdateStatus *UpdateStatusConfig `json:"-"`
}

// WaitDelayConfig holds the configuration for a waitDelay step.
type WaitDelayConfig struct {
	Delay int       `json:"delay"`
	Unit  DelayUnit `json:"unit"`
}

// Duration converts the configured delay to a time.Duration.
func (c WaitDelayConfig) Duration() time.Duration {
	switch c.Unit {
	case DelayHours:
		return time.Duration(c.Delay) * time.Hour
	case DelayDays:
		return time.Duration(c.Delay) * 24 * time.Hour
	default:
		return time.Duration(c.Delay) * time.Minute
	}
}

// SendEmailConfig holds the configuration for a sendEmail step.
type SendEmailConfig struct {
	EmailTemplateID string `json:"emailTemplateId"`
}

// SendSMSConfig holds the configuration for a sendSms step.
type SendSMSConfig struct {
	SMSTemplateID string `json:"smsTemplateId"`
	Sender        string `json:"sender"`
}

// UpdateStatusConfig holds the configuration for an updateStatus step.
// An empty StatusID makes the step a no-op.
type UpdateStatusConfig struct {
	StatusID string `json:"statusId"`
}

// DecodeConfig parses the raw config payload into the variant matching
// Kind. Unknown kinds decode to nothing and are left for the executor's
// fail-open path. Steps built in code carry only the typed variant;
// without a raw payload there is nothing to decode over it.
func (s *WorkflowStep) DecodeConfig() error {
	if len(s.Config) == 0 && s.configDecoded() {
		return nil
	}

	raw := s.Config
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch s.Kind {
	case StepWaitDelay:
		cfg := &WaitDelayConfig{}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("failed to decode waitDelay config: %w", err)
		}

		s.WaitDelay = cfg
	case StepSendEmail:
		cfg := &SendEmailConfig{}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("failed to decode sendEmail config: %w", err)
		}

		s.SendEmail = cfg
	case StepSendSMS:
		cfg := &SendSMSConfig{}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("failed to decode sendSms config: %w", err)
		}

		s.SendSMS = cfg
	case StepUpdateStatus:
		cfg := &UpdateStatusConfig{}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("failed to decode updateStatus config: %w", err)
		}

		s.UpdateStatus = cfg
	}

	return nil
}

// configDecoded reports whether the variant matching Kind is populated.
func (s *WorkflowStep) configDecoded() bool {
	switch s.Kind {
	case StepWaitDelay:
		return s.WaitDelay != nil
	case StepSendEmail:
		return s.SendEmail != nil
	case StepSendSMS:
		return s.SendSMS != nil
	case StepUpdateStatus:
		return s.UpdateStatus != nil
	}

	return false
}

package models

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// stepConfigSchemas maps each step kind to the JSON Schema its raw
// config payload must satisfy before being decoded.
var stepConfigSchemas = map[StepKind]string{
	StepWaitDelay: `{
		"type": "object",
		"properties": {
			"delay": {"type": "integer", "minimum": 0},
			"unit":  {"type": "string", "enum": ["minutes", "hours", "days"]}
		},
		"required": ["delay", "unit"],
		"additionalProperties": false
	}`,
	StepSendEmail: `{
		"type": "object",
		"properties": {
			"emailTemplateId": {"type": "string", "minLength": 1}
		},
		"required": ["emailTemplateId"],
		"additionalProperties": false
	}`,
	StepSendSMS: `{
		"type": "object",
		"properties": {
			"smsTemplateId": {"type": "string", "minLength": 1},
			"sender":        {"type": "string"}
		},
		"required": ["smsTemplateId"],
		"additionalProperties": false
	}`,
	StepUpdateStatus: `{
		"type": "object",
		"properties": {
			"statusId": {"type": "string"}
		},
		"additionalProperties": false
	}`,
}

// ValidateStepConfig checks the raw config payload of a step against the
// schema for its kind. Unknown kinds pass: the executor fails open on
// them at run time.
func ValidateStepConfig(step *WorkflowStep) error {
	schema, ok := stepConfigSchemas[step.Kind]
	if !ok {
		return nil
	}

	raw := "{}"
	if len(step.Config) > 0 {
		raw = string(step.Config)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %s config: %w", step.Kind, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid %s config: %s", step.Kind, strings.Join(details, "; "))
	}

	return nil
}

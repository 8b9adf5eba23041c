// Package variables builds the flat variable map used for message
// templating and substitutes {{identifier}} placeholders.
package variables

import (
	"context"
	"fmt"
	"regexp"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence"
)

var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Resolver merges user-defined variables with lead fields. Resolve is
// read-only: it is safe to call repeatedly for retries.
type Resolver struct {
	variables persistence.VariableRepository
}

// NewResolver creates a new variable resolver.
func NewResolver(variables persistence.VariableRepository) *Resolver {
	return &Resolver{variables: variables}
}

// Resolve produces the variable map for a user and lead. Stored user
// variables take precedence over lead fields when the stored value is
// non-empty; extra trigger-specific fields fill remaining gaps.
func (r *Resolver) Resolve(ctx context.Context, userID string, lead *models.Lead, extra map[string]string) (map[string]string, error) {
	vars := make(map[string]string)

	if lead != nil {
		vars["lead_id"] = lead.ID
		vars["lead_full_name"] = lead.FullName
		vars["lead_email"] = lead.Email
		vars["lead_phone"] = lead.Phone
		vars["lead_status_id"] = lead.StatusID
	}

	for key, value := range extra {
		if _, exists := vars[key]; !exists {
			vars[key] = value
		}
	}

	stored, err := r.variables.ForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user variables: %w", err)
	}

	for _, variable := range stored {
		if variable.Value != "" {
			vars[variable.Key] = variable.Value
		} else if _, exists := vars[variable.Key]; !exists {
			vars[variable.Key] = variable.Value
		}
	}

	return vars, nil
}

// Substitute replaces every {{identifier}} occurrence present in vars.
// Unknown identifiers are left untouched.
func Substitute(input string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		if value, ok := vars[name]; ok {
			return value
		}

		return match
	})
}

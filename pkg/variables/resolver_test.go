package variables

import (
	"testing"

	"github.com/leadline/leadline/pkg/models"
	"github.com/leadline/leadline/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_MergesLeadFieldsAndUserVariables(t *testing.T) {
	store := memory.NewPersistence()
	repo := store.VariableRepository()

	require.NoError(t, repo.Save(t.Context(), &models.UserVariable{
		UserID: "u1", Key: "company_name", Value: "Acme Inc",
	}))
	require.NoError(t, repo.Save(t.Context(), &models.UserVariable{
		UserID: "u1", Key: "lead_full_name", Value: "Override Name",
	}))

	resolver := NewResolver(repo)

	lead := &models.Lead{
		ID:       "l1",
		FullName: "Jamie Doe",
		Email:    "jamie@example.com",
		Phone:    "+15550001111",
		StatusID: "new",
	}

	vars, err := resolver.Resolve(t.Context(), "u1", lead, map[string]string{"source": "webform"})
	require.NoError(t, err)

	assert.Equal(t, "Acme Inc", vars["company_name"])
	// Non-empty stored value wins over the lead field
	assert.Equal(t, "Override Name", vars["lead_full_name"])
	assert.Equal(t, "jamie@example.com", vars["lead_email"])
	assert.Equal(t, "+15550001111", vars["lead_phone"])
	assert.Equal(t, "webform", vars["source"])
}

func TestResolve_EmptyStoredValueDoesNotShadowLeadField(t *testing.T) {
	store := memory.NewPersistence()
	repo := store.VariableRepository()

	require.NoError(t, repo.Save(t.Context(), &models.UserVariable{
		UserID: "u1", Key: "lead_email", Value: "",
	}))

	resolver := NewResolver(repo)

	lead := &models.Lead{ID: "l1", Email: "keep@example.com"}

	vars, err := resolver.Resolve(t.Context(), "u1", lead, nil)
	require.NoError(t, err)
	assert.Equal(t, "keep@example.com", vars["lead_email"])
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{
		"lead_full_name": "Jamie",
		"company_name":   "Acme",
	}

	out := Substitute("Hi {{lead_full_name}}, welcome to {{company_name}}! Ref: {{unknown_ref}}", vars)
	assert.Equal(t, "Hi Jamie, welcome to Acme! Ref: {{unknown_ref}}", out)
}

func TestSubstitute_NoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Substitute("plain text", map[string]string{"a": "b"}))
}

func TestSubstitute_EmptyValue(t *testing.T) {
	assert.Equal(t, "Hi ", Substitute("Hi {{name}}", map[string]string{"name": ""}))
}

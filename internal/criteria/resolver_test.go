package criteria

import (
	"testing"
	"time"

	"github.com/ignite/crm-automation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields() *CustomFields {
	defs := []domain.CustomFieldDefinition{
		{ID: "d1", EntityType: domain.EntityContact, Key: "industry", Name: "Industry Vertical"},
		{ID: "d2", EntityType: domain.EntityContact, Key: "employees", Name: "Employee Count"},
		{ID: "d3", EntityType: "Company", Key: "tier", Name: "Tier"},
		// Display name collides with d1's key; the key must win.
		{ID: "d4", EntityType: domain.EntityContact, Key: "legacy_industry", Name: "Industry"},
	}
	values := []domain.CustomFieldValue{
		{DefinitionID: "d1", EntityID: "c1", Value: "Healthcare"},
		{DefinitionID: "d2", EntityID: "c1", Value: "250"},
		{DefinitionID: "d3", EntityID: "c1", Value: "gold"},
		{DefinitionID: "d4", EntityID: "c1", Value: "Old"},
		{DefinitionID: "d1", EntityID: "c2", Value: "Retail"},
	}
	return NewCustomFields(domain.EntityContact, defs, values)
}

func TestResolver_BuiltInFirst(t *testing.T) {
	owner := "u-7"
	c := &domain.Contact{
		ID: "c1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com",
		LeadScore: 42, OwnerID: &owner, Status: domain.ContactQualified,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	r := NewResolver(testFields())

	cases := map[string]string{
		"FirstName": "Ada",
		"FullName":  "Ada Lovelace",
		"LeadScore": "42",
		"OwnerId":   "u-7",
		"Status":    "qualified",
		"CreatedAt": "2024-01-02T03:04:05Z",
	}
	for field, want := range cases {
		got := r.Resolve(c, field)
		require.NotNil(t, got, field)
		assert.Equal(t, want, *got, field)
	}
}

func TestResolver_NilOwnerIsAbsent(t *testing.T) {
	r := NewResolver(nil)
	assert.Nil(t, r.Resolve(&domain.Contact{ID: "c1"}, "OwnerId"))
}

func TestResolver_CustomFieldsByKeyOrName(t *testing.T) {
	r := NewResolver(testFields())
	c := &domain.Contact{ID: "c1"}

	got := r.Resolve(c, "INDUSTRY")
	require.NotNil(t, got)
	assert.Equal(t, "Healthcare", *got)

	got = r.Resolve(c, "employee count")
	require.NotNil(t, got)
	assert.Equal(t, "250", *got)

	// Other entity types' fields are invisible.
	assert.Nil(t, r.Resolve(c, "tier"))
	assert.Nil(t, r.Resolve(c, "nope"))
	// Defined but no value for this contact.
	assert.Nil(t, r.Resolve(&domain.Contact{ID: "c3"}, "industry"))
}

func TestResolver_MatchContact(t *testing.T) {
	r := NewResolver(testFields())
	c := &domain.Contact{ID: "c1", Email: "ada@acme.com"}

	assert.True(t, r.MatchContact([]Condition{
		{Field: "Email", Operator: OpEndsWith, Value: "@ACME.COM"},
		{Field: "employees", Operator: OpGreaterThan, Value: "100"},
	}, c))
	assert.False(t, r.MatchContact([]Condition{
		{Field: "industry", Operator: OpEquals, Value: "Retail"},
	}, c))
	assert.True(t, r.MatchContact(nil, c))
}

func TestContactAttributeNames(t *testing.T) {
	names := ContactAttributeNames()
	assert.Contains(t, names, "Email")
	assert.Contains(t, names, "LeadScore")
	assert.True(t, IsContactAttribute("FullName"))
	assert.False(t, IsContactAttribute("fullname"))
}

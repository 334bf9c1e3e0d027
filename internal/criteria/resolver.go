package criteria

import (
	"strings"

	"github.com/ignite/crm-automation/internal/domain"
)

// CustomFields indexes custom field definitions and values for one entity
// type so lookups by entity and field name are cheap. Build it once per poll
// and share it.
type CustomFields struct {
	byName map[string]string            // lower-cased key or name -> definition ID
	values map[string]map[string]string // entity ID -> definition ID -> value
}

// NewCustomFields indexes the definitions of entityType and their values.
// Values belonging to other entity types' definitions are ignored. When a
// key of one definition equals the display name of another, the key wins.
func NewCustomFields(entityType string, defs []domain.CustomFieldDefinition, values []domain.CustomFieldValue) *CustomFields {
	cf := &CustomFields{
		byName: make(map[string]string, len(defs)*2),
		values: make(map[string]map[string]string),
	}

	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		if !strings.EqualFold(d.EntityType, entityType) {
			continue
		}
		known[d.ID] = true
		if d.Name != "" {
			if _, taken := cf.byName[strings.ToLower(d.Name)]; !taken {
				cf.byName[strings.ToLower(d.Name)] = d.ID
			}
		}
	}
	for _, d := range defs {
		if known[d.ID] && d.Key != "" {
			cf.byName[strings.ToLower(d.Key)] = d.ID
		}
	}

	for _, v := range values {
		if !known[v.DefinitionID] {
			continue
		}
		m, ok := cf.values[v.EntityID]
		if !ok {
			m = make(map[string]string)
			cf.values[v.EntityID] = m
		}
		m[v.DefinitionID] = v.Value
	}
	return cf
}

// Lookup returns the value of the custom field whose key or display name
// matches field (case-insensitive) for the given entity.
func (cf *CustomFields) Lookup(entityID, field string) (string, bool) {
	if cf == nil {
		return "", false
	}
	defID, ok := cf.byName[strings.ToLower(field)]
	if !ok {
		return "", false
	}
	v, ok := cf.values[entityID][defID]
	return v, ok
}

// Resolver looks up a named field on a contact: built-in attributes first,
// then custom fields.
type Resolver struct {
	fields *CustomFields
}

// NewResolver creates a resolver over the given custom field index, which
// may be nil when no custom fields exist.
func NewResolver(fields *CustomFields) *Resolver {
	return &Resolver{fields: fields}
}

// Resolve returns the field's value, or nil when the contact has none.
func (r *Resolver) Resolve(c *domain.Contact, field string) *string {
	if c == nil {
		return nil
	}
	if get, ok := contactAttributes[field]; ok {
		if v, ok := get(c); ok {
			return &v
		}
		return nil
	}
	if v, ok := r.fields.Lookup(c.ID, field); ok {
		return &v
	}
	return nil
}

// MatchContact reports whether every condition holds for the contact.
func (r *Resolver) MatchContact(conds []Condition, c *domain.Contact) bool {
	return MatchAll(conds, func(field string) *string { return r.Resolve(c, field) })
}

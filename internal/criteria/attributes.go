package criteria

import (
	"sort"
	"strconv"
	"time"

	"github.com/ignite/crm-automation/internal/domain"
)

// attributeFunc reads one built-in contact attribute. ok is false when the
// attribute has no value (a nil owner, for example).
type attributeFunc func(c *domain.Contact) (value string, ok bool)

func str(get func(c *domain.Contact) string) attributeFunc {
	return func(c *domain.Contact) (string, bool) { return get(c), true }
}

// contactAttributes is the compile-time registry of built-in contact fields,
// keyed by exact attribute name.
var contactAttributes = map[string]attributeFunc{
	"Id":        str(func(c *domain.Contact) string { return c.ID }),
	"FirstName": str(func(c *domain.Contact) string { return c.FirstName }),
	"LastName":  str(func(c *domain.Contact) string { return c.LastName }),
	"FullName":  str(func(c *domain.Contact) string { return c.FullName() }),
	"Email":     str(func(c *domain.Contact) string { return c.Email }),
	"Phone":     str(func(c *domain.Contact) string { return c.Phone }),
	"Company":   str(func(c *domain.Contact) string { return c.Company }),
	"JobTitle":  str(func(c *domain.Contact) string { return c.JobTitle }),
	"City":      str(func(c *domain.Contact) string { return c.City }),
	"State":     str(func(c *domain.Contact) string { return c.State }),
	"Country":   str(func(c *domain.Contact) string { return c.Country }),
	"Source":    str(func(c *domain.Contact) string { return c.Source }),
	"Status":    str(func(c *domain.Contact) string { return string(c.Status) }),
	"LeadScore": str(func(c *domain.Contact) string { return strconv.Itoa(c.LeadScore) }),
	"OwnerId": func(c *domain.Contact) (string, bool) {
		if c.OwnerID == nil {
			return "", false
		}
		return *c.OwnerID, true
	},
	"CreatedAt": str(func(c *domain.Contact) string { return c.CreatedAt.UTC().Format(time.RFC3339) }),
	"UpdatedAt": str(func(c *domain.Contact) string { return c.UpdatedAt.UTC().Format(time.RFC3339) }),
}

// ContactAttribute returns the string form of a built-in contact attribute.
func ContactAttribute(c *domain.Contact, name string) (string, bool) {
	get, ok := contactAttributes[name]
	if !ok || c == nil {
		return "", false
	}
	return get(c)
}

// IsContactAttribute reports whether name is a built-in contact attribute.
func IsContactAttribute(name string) bool {
	_, ok := contactAttributes[name]
	return ok
}

// ContactAttributeNames lists the registry keys in sorted order.
func ContactAttributeNames() []string {
	names := make([]string, 0, len(contactAttributes))
	for name := range contactAttributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package domain

import (
	"strings"
	"time"
)

// ContactStatus enumerates the sales lifecycle states of a contact.
type ContactStatus string

const (
	ContactNew         ContactStatus = "new"
	ContactContacted   ContactStatus = "contacted"
	ContactQualified   ContactStatus = "qualified"
	ContactUnqualified ContactStatus = "unqualified"
	ContactCustomer    ContactStatus = "customer"
	ContactClosed      ContactStatus = "closed"
	ContactLost        ContactStatus = "lost"
)

// IsClosed reports whether the status no longer counts toward an owner's
// open workload.
func (s ContactStatus) IsClosed() bool {
	return s == ContactClosed || s == ContactLost
}

// EntityContact is the entity type custom field definitions use for contacts.
const EntityContact = "Contact"

// Contact is a CRM person record. Scoring mutates LeadScore and assignment
// mutates OwnerID; everything else is owned by the CRM proper.
type Contact struct {
	ID        string        `json:"id" db:"id"`
	FirstName string        `json:"first_name" db:"first_name"`
	LastName  string        `json:"last_name" db:"last_name"`
	Email     string        `json:"email" db:"email"`
	Phone     string        `json:"phone" db:"phone"`
	Company   string        `json:"company" db:"company"`
	JobTitle  string        `json:"job_title" db:"job_title"`
	City      string        `json:"city" db:"city"`
	State     string        `json:"state" db:"state"`
	Country   string        `json:"country" db:"country"`
	Source    string        `json:"source" db:"source"`
	Status    ContactStatus `json:"status" db:"status"`
	LeadScore int           `json:"lead_score" db:"lead_score"`
	OwnerID   *string       `json:"owner_id" db:"owner_id"`
	IsDeleted bool          `json:"-" db:"is_deleted"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name, skipping empty parts.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// CustomFieldType enumerates the data types a custom field can hold.
type CustomFieldType string

const (
	CustomFieldText    CustomFieldType = "text"
	CustomFieldNumber  CustomFieldType = "number"
	CustomFieldDate    CustomFieldType = "date"
	CustomFieldBoolean CustomFieldType = "boolean"
	CustomFieldSelect  CustomFieldType = "select"
)

// CustomFieldDefinition describes an administrator-defined field for an
// entity type.
type CustomFieldDefinition struct {
	ID         string          `json:"id" db:"id"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	Key        string          `json:"key" db:"field_key"`
	Name       string          `json:"name" db:"name"`
	FieldType  CustomFieldType `json:"field_type" db:"field_type"`
}

// CustomFieldValue is the stored value of one custom field for one entity.
type CustomFieldValue struct {
	ID           string `json:"id" db:"id"`
	DefinitionID string `json:"definition_id" db:"definition_id"`
	EntityID     string `json:"entity_id" db:"entity_id"`
	Value        string `json:"value" db:"value"`
}

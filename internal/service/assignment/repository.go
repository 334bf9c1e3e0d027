package assignment

import (
	"context"

	"github.com/ignite/crm-automation/internal/domain"
)

// Repository defines the data access contract for lead assignment.
type Repository interface {
	// GetContact returns a contact. Returns domain.ErrNotFound if it doesn't
	// exist or is soft-deleted.
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	// ActiveAssignmentRules returns active rules ordered by ascending priority.
	ActiveAssignmentRules(ctx context.Context) ([]domain.LeadAssignmentRule, error)

	// GetAssignmentRule re-reads one rule, used to refresh the cursor under lock.
	GetAssignmentRule(ctx context.Context, id string) (*domain.LeadAssignmentRule, error)

	// SetLastAssignedIndex persists the round-robin cursor.
	SetLastAssignedIndex(ctx context.Context, ruleID string, index int) error

	// CountOpenContactsByOwner returns, per owner, how many non-deleted
	// contacts in a non-closed status they own. Owners with none may be
	// absent from the map.
	CountOpenContactsByOwner(ctx context.Context, ownerIDs []string) (map[string]int, error)

	// SetContactOwner persists the chosen owner.
	SetContactOwner(ctx context.Context, contactID, ownerID string) error

	CustomFieldDefinitions(ctx context.Context, entityType string) ([]domain.CustomFieldDefinition, error)
	CustomFieldValues(ctx context.Context, entityType string, entityIDs []string) ([]domain.CustomFieldValue, error)
}

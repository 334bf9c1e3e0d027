package segment

import (
	"context"
	"time"

	"github.com/ignite/crm-automation/internal/domain"
)

// Repository defines the data access contract for dynamic list
// reconciliation.
type Repository interface {
	// ActiveDynamicLists returns every list with type dynamic and status active.
	ActiveDynamicLists(ctx context.Context) ([]domain.MarketingList, error)

	// ListContacts returns all contacts that are not soft-deleted.
	ListContacts(ctx context.Context) ([]domain.Contact, error)

	// CustomFieldDefinitions returns the definitions for an entity type.
	CustomFieldDefinitions(ctx context.Context, entityType string) ([]domain.CustomFieldDefinition, error)

	// CustomFieldValues returns values for the given entity type. A nil
	// entityIDs slice means every entity.
	CustomFieldValues(ctx context.Context, entityType string, entityIDs []string) ([]domain.CustomFieldValue, error)

	// ListMembers returns the current members of a list.
	ListMembers(ctx context.Context, listID string) ([]domain.MarketingListMember, error)

	// ApplyMembershipDiff inserts add, deletes the member rows in removeIDs,
	// moves member_count by the net number of rows inserted and deleted
	// (never below zero) and stamps last_synced_at, all atomically.
	ApplyMembershipDiff(ctx context.Context, listID string, add []domain.MarketingListMember, removeIDs []string, syncedAt time.Time) error
}

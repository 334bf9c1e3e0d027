package scoring

import (
	"context"

	"github.com/ignite/crm-automation/internal/domain"
)

// Repository defines the data access contract for lead scoring.
type Repository interface {
	// GetContact returns a contact. Returns domain.ErrNotFound if it doesn't
	// exist or is soft-deleted.
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	// ActiveScoringRules returns active rules whose trigger type equals
	// triggerType exactly.
	ActiveScoringRules(ctx context.Context, triggerType string) ([]domain.LeadScoringRule, error)

	CustomFieldDefinitions(ctx context.Context, entityType string) ([]domain.CustomFieldDefinition, error)
	CustomFieldValues(ctx context.Context, entityType string, entityIDs []string) ([]domain.CustomFieldValue, error)

	// AddLeadScore adds delta to the contact's lead score and returns the
	// new value.
	AddLeadScore(ctx context.Context, contactID string, delta int) (int, error)
}

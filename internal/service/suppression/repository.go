package suppression

import (
	"context"

	"github.com/ignite/crm-automation/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// All emails passed in are already normalized.
type Repository interface {
	// IsSuppressed returns true if the email is on the list.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// Suppress adds an entry. An existing entry for the same email is kept.
	Suppress(ctx context.Context, e *domain.SuppressionEntry) error

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, email string) error

	// SuppressedAmong returns the subset of emails that are on the list.
	SuppressedAmong(ctx context.Context, emails []string) ([]string, error)

	// List returns entries matching the filter, newest first, plus the total.
	List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error)

	// Count returns the total number of suppressed emails.
	Count(ctx context.Context) (int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason string
	Search string
	Limit  int
	Offset int
}

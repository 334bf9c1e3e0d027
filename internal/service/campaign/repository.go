package campaign

import (
	"context"
	"time"

	"github.com/ignite/crm-automation/internal/domain"
)

// Repository defines the data access contract for the campaign scheduler.
type Repository interface {
	// GetCampaign returns a single campaign. Returns domain.ErrNotFound if
	// it doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.MarketingCampaign, error)

	// DueScheduledCampaigns returns scheduled campaigns whose scheduled_for
	// is at or before now.
	DueScheduledCampaigns(ctx context.Context, now time.Time) ([]domain.MarketingCampaign, error)

	// ActiveDripCampaigns returns every active campaign of type drip.
	ActiveDripCampaigns(ctx context.Context) ([]domain.MarketingCampaign, error)

	// ActivateCampaign moves the campaign to active and stamps started_at,
	// but only if its current status is one of from. It reports whether the
	// row changed, so two pollers cannot both start the same campaign.
	ActivateCampaign(ctx context.Context, id string, from []domain.CampaignStatus, startedAt time.Time) (bool, error)

	// UpdateStatus sets the status unconditionally. Used to roll back a
	// failed start.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// CompleteCampaign marks an active campaign completed.
	CompleteCampaign(ctx context.Context, id string, completedAt time.Time) error

	// ListSteps returns the campaign's steps by ascending order_index.
	ListSteps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)

	// SubscribedMembers returns the subscribed members of a list.
	SubscribedMembers(ctx context.Context, listID string) ([]domain.MarketingListMember, error)

	// CreateRecipients inserts enrollment rows and reports how many were
	// written. A contact already enrolled in the campaign is skipped.
	CreateRecipients(ctx context.Context, recipients []domain.CampaignRecipient) (int, error)

	// DueRecipients returns at most limit active recipients of the campaign
	// whose next step is due, oldest next_step_scheduled_at first.
	DueRecipients(ctx context.Context, campaignID string, now time.Time, limit int) ([]domain.CampaignRecipient, error)

	// CountActiveRecipients returns how many recipients are still active.
	CountActiveRecipients(ctx context.Context, campaignID string) (int, error)

	// ContactsByID returns the contacts with the given IDs. Missing IDs are
	// skipped.
	ContactsByID(ctx context.Context, ids []string) ([]domain.Contact, error)

	// CommitStepBatch persists the outcome of one step batch atomically.
	CommitStepBatch(ctx context.Context, b *StepBatch) error
}

// SuppressionFilter reports which of the given emails are suppressed.
// Returned keys are normalized (trimmed, lower-cased).
type SuppressionFilter interface {
	FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error)
}

// StepBatch is everything one poll's step sweep changed for a campaign.
type StepBatch struct {
	CampaignID string
	// Recipients carries the new state of every processed recipient.
	Recipients []domain.CampaignRecipient
	Logs       []domain.CampaignStepExecutionLog
	// CampaignSent is the number of send attempts to add to the campaign.
	CampaignSent int
	// StepSent maps step ID to send attempts to add to that step.
	StepSent map[string]int
}

// Empty reports whether the batch would write nothing.
func (b *StepBatch) Empty() bool {
	return len(b.Recipients) == 0 && len(b.Logs) == 0 && b.CampaignSent == 0
}

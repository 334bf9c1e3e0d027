package domain

import (
	"time"
)

// CampaignType distinguishes one-shot sends from timed step sequences.
type CampaignType string

const (
	CampaignStandard CampaignType = "standard"
	CampaignDrip     CampaignType = "drip"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
// Draft -> Scheduled happens outside the scheduler; Scheduled -> Active ->
// Completed is driven by it.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
)

// MarketingCampaign targets one marketing list with either a single message
// (standard) or an ordered set of steps (drip).
type MarketingCampaign struct {
	ID              string         `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	Type            CampaignType   `json:"type" db:"campaign_type"`
	Status          CampaignStatus `json:"status" db:"status"`
	MarketingListID string         `json:"marketing_list_id" db:"marketing_list_id"`
	ScheduledFor    *time.Time     `json:"scheduled_for" db:"scheduled_for"`
	StartedAt       *time.Time     `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at" db:"completed_at"`
	SentCount       int            `json:"sent_count" db:"sent_count"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// IsDrip reports whether recipients progress through steps.
func (c *MarketingCampaign) IsDrip() bool { return c.Type == CampaignDrip }

// CampaignStep is one message in a drip sequence. OrderIndex is unique per
// campaign and steps run in ascending order.
type CampaignStep struct {
	ID               string `json:"id" db:"id"`
	CampaignID       string `json:"campaign_id" db:"campaign_id"`
	OrderIndex       int    `json:"order_index" db:"order_index"`
	DelayMinutes     int    `json:"delay_minutes" db:"delay_minutes"`
	Subject          string `json:"subject" db:"subject"`
	HTMLContent      string `json:"html_content" db:"html_content"`
	PlainTextContent string `json:"plain_text_content" db:"plain_text_content"`
	SentCount        int    `json:"sent_count" db:"sent_count"`
}

// Delay returns the wait before this step is due.
func (s *CampaignStep) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
}

// RecipientStatus enumerates a recipient's progress through a campaign.
type RecipientStatus string

const (
	RecipientPending      RecipientStatus = "pending"
	RecipientActive       RecipientStatus = "active"
	RecipientCompleted    RecipientStatus = "completed"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
	RecipientBounced      RecipientStatus = "bounced"
)

// IsTerminal returns true if the recipient will never receive another step.
func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientCompleted || s == RecipientUnsubscribed || s == RecipientBounced
}

// CampaignRecipient is the per-contact enrollment record. For drip
// campaigns CurrentStepID and NextStepScheduledAt are both set iff Status is
// active, and both nil once the status is terminal.
type CampaignRecipient struct {
	ID                  string          `json:"id" db:"id"`
	CampaignID          string          `json:"campaign_id" db:"campaign_id"`
	ContactID           string          `json:"contact_id" db:"contact_id"`
	Email               string          `json:"email" db:"email"`
	Status              RecipientStatus `json:"status" db:"status"`
	CurrentStepID       *string         `json:"current_step_id" db:"current_step_id"`
	NextStepScheduledAt *time.Time      `json:"next_step_scheduled_at" db:"next_step_scheduled_at"`
	SentAt              *time.Time      `json:"sent_at" db:"sent_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
}

// ExecutionStatus is the outcome of one step delivery attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// CampaignStepExecutionLog is an append-only audit row per step attempt.
type CampaignStepExecutionLog struct {
	ID           string          `json:"id" db:"id"`
	CampaignID   string          `json:"campaign_id" db:"campaign_id"`
	StepID       string          `json:"step_id" db:"step_id"`
	RecipientID  string          `json:"recipient_id" db:"recipient_id"`
	ExecutedAt   time.Time       `json:"executed_at" db:"executed_at"`
	Status       ExecutionStatus `json:"status" db:"status"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
}

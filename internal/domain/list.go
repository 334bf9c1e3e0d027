package domain

import (
	"encoding/json"
	"time"
)

// ListType distinguishes hand-curated lists from rule-derived segments.
type ListType string

const (
	ListStatic  ListType = "static"
	ListDynamic ListType = "dynamic"
)

// ListStatus enumerates the states of a marketing list.
type ListStatus string

const (
	ListActive ListStatus = "active"
	ListPaused ListStatus = "paused"
)

// MarketingList is a set of contacts targeted by campaigns. For dynamic
// lists membership is derived from DynamicCriteria and never hand-edited.
type MarketingList struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Type            ListType        `json:"type" db:"list_type"`
	Status          ListStatus      `json:"status" db:"status"`
	DynamicCriteria json.RawMessage `json:"dynamic_criteria,omitempty" db:"dynamic_criteria"`
	MemberCount     int             `json:"member_count" db:"member_count"`
	LastSyncedAt    *time.Time      `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// MemberStatus enumerates a list member's subscription state.
type MemberStatus string

const (
	MemberSubscribed   MemberStatus = "subscribed"
	MemberUnsubscribed MemberStatus = "unsubscribed"
)

// MemberSourceDynamicRule marks members inserted by the segment reconciler.
const MemberSourceDynamicRule = "Dynamic Rule"

// MarketingListMember links a contact to a list. Unique per (ListID, ContactID).
type MarketingListMember struct {
	ID           string       `json:"id" db:"id"`
	ListID       string       `json:"list_id" db:"list_id"`
	ContactID    string       `json:"contact_id" db:"contact_id"`
	Email        string       `json:"email" db:"email"`
	Status       MemberStatus `json:"status" db:"status"`
	Source       string       `json:"source" db:"source"`
	SubscribedAt time.Time    `json:"subscribed_at" db:"subscribed_at"`
}

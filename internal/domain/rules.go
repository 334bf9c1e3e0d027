package domain

import (
	"encoding/json"
	"time"
)

// LeadScoringRule adds PointsValue (possibly negative) to a contact's lead
// score when its trigger fires and all Conditions match.
type LeadScoringRule struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	TriggerType string          `json:"trigger_type" db:"trigger_type"`
	Conditions  json.RawMessage `json:"conditions,omitempty" db:"conditions"`
	PointsValue int             `json:"points_value" db:"points_value"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AssignmentType selects how an owner is picked among a rule's candidates.
type AssignmentType string

const (
	AssignRoundRobin AssignmentType = "round_robin"
	AssignTerritory  AssignmentType = "territory"
	AssignScoreBased AssignmentType = "score_based"
	AssignWorkload   AssignmentType = "workload"
)

// LeadAssignmentRule routes new leads to users. Lower Priority wins.
// LastAssignedIndex is the persisted round-robin cursor; it is shared
// mutable state and must be guarded by callers that run concurrently.
type LeadAssignmentRule struct {
	ID                string          `json:"id" db:"id"`
	Name              string          `json:"name" db:"name"`
	Priority          int             `json:"priority" db:"priority"`
	AssignmentType    AssignmentType  `json:"assignment_type" db:"assignment_type"`
	Criteria          json.RawMessage `json:"criteria,omitempty" db:"criteria"`
	AssignToUserIDs   []string        `json:"assign_to_user_ids" db:"assign_to_user_ids"`
	LastAssignedIndex *int            `json:"last_assigned_index" db:"last_assigned_index"`
	IsActive          bool            `json:"is_active" db:"is_active"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

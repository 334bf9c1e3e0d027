package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/crm-automation/internal/domain"
)

// RuleRepo reads scoring and assignment rules and persists the
// round-robin cursor.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

// ActiveScoringRules returns active rules whose trigger type equals
// triggerType exactly.
func (r *RuleRepo) ActiveScoringRules(ctx context.Context, triggerType string) ([]domain.LeadScoringRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, trigger_type, conditions, points_value, is_active, created_at
		FROM lead_scoring_rules
		WHERE is_active AND trigger_type = $1
		ORDER BY created_at, id
	`, triggerType)
	if err != nil {
		return nil, fmt.Errorf("list scoring rules: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadScoringRule
	for rows.Next() {
		var rule domain.LeadScoringRule
		var conds []byte
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.TriggerType, &conds, &rule.PointsValue,
			&rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scoring rule: %w", err)
		}
		rule.Conditions = conds
		out = append(out, rule)
	}
	return out, rows.Err()
}

const assignmentColumns = `id, name, priority, assignment_type, criteria, assign_to_user_ids,
	last_assigned_index, is_active, created_at`

func scanAssignmentRule(row rowScanner) (domain.LeadAssignmentRule, error) {
	var rule domain.LeadAssignmentRule
	var criteria []byte
	var last sql.NullInt64
	err := row.Scan(&rule.ID, &rule.Name, &rule.Priority, &rule.AssignmentType, &criteria,
		pq.Array(&rule.AssignToUserIDs), &last, &rule.IsActive, &rule.CreatedAt)
	rule.Criteria = criteria
	if last.Valid {
		idx := int(last.Int64)
		rule.LastAssignedIndex = &idx
	}
	return rule, err
}

// ActiveAssignmentRules returns active rules by ascending priority.
func (r *RuleRepo) ActiveAssignmentRules(ctx context.Context) ([]domain.LeadAssignmentRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM lead_assignment_rules
		WHERE is_active
		ORDER BY priority, created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list assignment rules: %w", err)
	}
	defer rows.Close()

	var out []domain.LeadAssignmentRule
	for rows.Next() {
		rule, err := scanAssignmentRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *RuleRepo) GetAssignmentRule(ctx context.Context, id string) (*domain.LeadAssignmentRule, error) {
	rule, err := scanAssignmentRule(r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM lead_assignment_rules WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment rule: %w", err)
	}
	return &rule, nil
}

func (r *RuleRepo) SetLastAssignedIndex(ctx context.Context, ruleID string, index int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lead_assignment_rules SET last_assigned_index = $2 WHERE id = $1`, ruleID, index)
	if err != nil {
		return fmt.Errorf("set round-robin cursor: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

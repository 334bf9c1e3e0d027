package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-automation/internal/domain"
)

var assignmentCols = []string{"id", "name", "priority", "assignment_type", "criteria",
	"assign_to_user_ids", "last_assigned_index", "is_active", "created_at"}

func TestRuleRepo_ActiveAssignmentRules(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRuleRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM lead_assignment_rules").
		WillReturnRows(sqlmock.NewRows(assignmentCols).
			AddRow("r1", "West", 1, "round_robin", []byte(`[]`), "{u1,u2,u3}", 2, true, now).
			AddRow("r2", "Fallback", 9, "workload", nil, "{u4}", nil, true, now))

	rules, err := repo.ActiveAssignmentRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, domain.AssignRoundRobin, rules[0].AssignmentType)
	assert.Equal(t, []string{"u1", "u2", "u3"}, rules[0].AssignToUserIDs)
	require.NotNil(t, rules[0].LastAssignedIndex)
	assert.Equal(t, 2, *rules[0].LastAssignedIndex)

	assert.Nil(t, rules[1].LastAssignedIndex)
	assert.Nil(t, rules[1].Criteria)
}

func TestRuleRepo_GetAssignmentRuleNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRuleRepo(db)

	mock.ExpectQuery("FROM lead_assignment_rules WHERE id").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(assignmentCols))

	_, err := repo.GetAssignmentRule(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRuleRepo_SetLastAssignedIndex(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRuleRepo(db)

	mock.ExpectExec("UPDATE lead_assignment_rules SET last_assigned_index").
		WithArgs("r1", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetLastAssignedIndex(context.Background(), "r1", 0))

	mock.ExpectExec("UPDATE lead_assignment_rules").
		WithArgs("r9", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetLastAssignedIndex(context.Background(), "r9", 1), domain.ErrNotFound)
}

func TestRuleRepo_ActiveScoringRules(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRuleRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM lead_scoring_rules").WithArgs("PageView").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "trigger_type", "conditions", "points_value", "is_active", "created_at"}).
			AddRow("s1", "Visit", "PageView", nil, 10, true, now))

	rules, err := repo.ActiveScoringRules(context.Background(), "PageView")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 10, rules[0].PointsValue)
	assert.Empty(t, rules[0].Conditions)
}

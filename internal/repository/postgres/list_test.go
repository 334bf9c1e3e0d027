package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-automation/internal/domain"
)

func TestListRepo_ActiveDynamicLists(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM marketing_lists").
		WithArgs(domain.ListDynamic, domain.ListActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "list_type", "status", "dynamic_criteria",
			"member_count", "last_synced_at", "created_at", "updated_at"}).
			AddRow("l1", "Hot leads", "dynamic", "active", []byte(`[{"field":"LeadScore","operator":"GreaterThan","value":"50"}]`),
				4, nil, now, now))

	lists, err := repo.ActiveDynamicLists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, domain.ListDynamic, lists[0].Type)
	assert.JSONEq(t, `[{"field":"LeadScore","operator":"GreaterThan","value":"50"}]`, string(lists[0].DynamicCriteria))
	assert.Nil(t, lists[0].LastSyncedAt)
}

func TestListRepo_ApplyMembershipDiff(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListRepo(db)
	now := time.Now().UTC()

	add := []domain.MarketingListMember{{
		ID: "m2", ListID: "l1", ContactID: "c2", Email: "b@x.com",
		Status: domain.MemberSubscribed, Source: domain.MemberSourceDynamicRule, SubscribedAt: now,
	}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM marketing_list_members WHERE list_id = $1 AND id = ANY($2)")).
		WithArgs("l1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO marketing_list_members").ExpectExec().
		WithArgs("m2", "l1", "c2", "b@x.com", domain.MemberSubscribed, domain.MemberSourceDynamicRule, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("member_count = GREATEST(member_count + $2, 0)")).
		WithArgs("l1", int64(0), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyMembershipDiff(context.Background(), "l1", add, []string{"m1"}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRepo_ApplyMembershipDiffOnlyRemovals(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM marketing_list_members").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE marketing_lists").
		WithArgs("l1", int64(-2), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyMembershipDiff(context.Background(), "l1", nil, []string{"m1", "m2"}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRepo_ApplyMembershipDiffCountsOnlyWrittenRows(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListRepo(db)
	now := time.Now().UTC()

	add := []domain.MarketingListMember{
		{ID: "m3", ListID: "l1", ContactID: "c3", Email: "c@x.com", Status: domain.MemberSubscribed, Source: domain.MemberSourceDynamicRule, SubscribedAt: now},
		{ID: "m4", ListID: "l1", ContactID: "c4", Email: "d@x.com", Status: domain.MemberSubscribed, Source: domain.MemberSourceDynamicRule, SubscribedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM marketing_list_members").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO marketing_list_members")
	prep.ExpectExec().WithArgs("m3", "l1", "c3", "c@x.com", domain.MemberSubscribed, domain.MemberSourceDynamicRule, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// c4 joined concurrently; the conflict clause skips it.
	prep.ExpectExec().WithArgs("m4", "l1", "c4", "d@x.com", domain.MemberSubscribed, domain.MemberSourceDynamicRule, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE marketing_lists").
		WithArgs("l1", int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ApplyMembershipDiff(context.Background(), "l1", add, []string{"m9"}, now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRepo_SubscribedMembers(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewListRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE list_id = $1 AND status = $2")).
		WithArgs("l1", domain.MemberSubscribed).
		WillReturnRows(sqlmock.NewRows([]string{"id", "list_id", "contact_id", "email", "status", "source", "subscribed_at"}).
			AddRow("m1", "l1", "c1", "a@x.com", "subscribed", "", now))

	ms, err := repo.SubscribedMembers(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, domain.MemberSubscribed, ms[0].Status)
}

package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/crm-automation/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var contactCols = []string{
	"id", "first_name", "last_name", "email", "phone", "company", "job_title", "city", "state",
	"country", "source", "status", "lead_score", "owner_id", "is_deleted", "created_at", "updated_at",
}

func TestContactRepo_GetContact(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM contacts WHERE id = $1 AND NOT is_deleted")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(contactCols).AddRow(
			"c1", "Ann", "Lee", "ann@example.com", "", "Acme", "", "Oslo", "", "NO",
			"web", "new", 15, "u1", false, now, now))

	c, err := repo.GetContact(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", c.FirstName)
	assert.Equal(t, domain.ContactNew, c.Status)
	assert.Equal(t, 15, c.LeadScore)
	require.NotNil(t, c.OwnerID)
	assert.Equal(t, "u1", *c.OwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_GetContactNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)

	mock.ExpectQuery("FROM contacts").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetContact(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContactRepo_AddLeadScore(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SET lead_score = lead_score + $2")).
		WithArgs("c1", -5).
		WillReturnRows(sqlmock.NewRows([]string{"lead_score"}).AddRow(20))

	score, err := repo.AddLeadScore(context.Background(), "c1", -5)
	require.NoError(t, err)
	assert.Equal(t, 20, score)

	mock.ExpectQuery("SET lead_score").WithArgs("gone", 1).WillReturnError(sql.ErrNoRows)
	_, err = repo.AddLeadScore(context.Background(), "gone", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContactRepo_SetContactOwner(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)

	mock.ExpectExec("UPDATE contacts SET owner_id").WithArgs("c1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetContactOwner(context.Background(), "c1", "u2"))

	mock.ExpectExec("UPDATE contacts SET owner_id").WithArgs("c9", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetContactOwner(context.Background(), "c9", "u2"), domain.ErrNotFound)
}

func TestContactRepo_CountOpenContactsByOwner(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("status <> ALL($2)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "count"}).AddRow("a", 3).AddRow("b", 1))

	counts, err := repo.CountOpenContactsByOwner(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 3, "b": 1}, counts)

	empty, err := repo.CountOpenContactsByOwner(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_CustomFieldValues(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewContactRepo(db)
	cols := []string{"id", "definition_id", "entity_id", "value"}

	// nil ids: every entity, no id filter.
	mock.ExpectQuery("FROM custom_field_values").
		WithArgs(domain.EntityContact).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("v1", "d1", "c1", "West"))
	vals, err := repo.CustomFieldValues(context.Background(), domain.EntityContact, nil)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, "West", vals[0].Value)

	mock.ExpectQuery(regexp.QuoteMeta("AND v.entity_id = ANY($2)")).
		WithArgs(domain.EntityContact, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.CustomFieldValues(context.Background(), domain.EntityContact, []string{"c1"})
	require.NoError(t, err)

	// An empty id list never hits the database.
	vals, err = repo.CustomFieldValues(context.Background(), domain.EntityContact, []string{})
	require.NoError(t, err)
	assert.Nil(t, vals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

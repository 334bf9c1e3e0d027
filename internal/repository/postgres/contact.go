package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/crm-automation/internal/domain"
)

// ContactRepo reads contacts and their custom fields and applies the two
// mutations the automation core owns: lead score and owner.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactColumns = `id, first_name, last_name, email, COALESCE(phone,''), COALESCE(company,''),
	COALESCE(job_title,''), COALESCE(city,''), COALESCE(state,''), COALESCE(country,''),
	COALESCE(source,''), status, lead_score, owner_id, is_deleted, created_at, updated_at`

func scanContact(row rowScanner) (domain.Contact, error) {
	var c domain.Contact
	var owner sql.NullString
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company,
		&c.JobTitle, &c.City, &c.State, &c.Country,
		&c.Source, &c.Status, &c.LeadScore, &owner, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt,
	)
	c.OwnerID = stringPtr(owner)
	return c, err
}

func (r *ContactRepo) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1 AND NOT is_deleted`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepo) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	return r.queryContacts(ctx, `SELECT `+contactColumns+` FROM contacts WHERE NOT is_deleted ORDER BY created_at, id`)
}

func (r *ContactRepo) ContactsByID(ctx context.Context, ids []string) ([]domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryContacts(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ANY($1) AND NOT is_deleted`,
		pq.Array(ids))
}

func (r *ContactRepo) queryContacts(ctx context.Context, q string, args ...interface{}) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddLeadScore adds delta in a single statement and returns the new score.
func (r *ContactRepo) AddLeadScore(ctx context.Context, contactID string, delta int) (int, error) {
	var score int
	err := r.db.QueryRowContext(ctx, `
		UPDATE contacts SET lead_score = lead_score + $2, updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
		RETURNING lead_score
	`, contactID, delta).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add lead score: %w", err)
	}
	return score, nil
}

func (r *ContactRepo) SetContactOwner(ctx context.Context, contactID, ownerID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET owner_id = $2, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`,
		contactID, ownerID)
	if err != nil {
		return fmt.Errorf("set contact owner: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountOpenContactsByOwner counts non-deleted contacts per owner whose
// status is not closed or lost. Owners with none are absent from the map.
func (r *ContactRepo) CountOpenContactsByOwner(ctx context.Context, ownerIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, COUNT(*)
		FROM contacts
		WHERE owner_id = ANY($1) AND NOT is_deleted AND status <> ALL($2)
		GROUP BY owner_id
	`, pq.Array(ownerIDs), pq.Array([]string{string(domain.ContactClosed), string(domain.ContactLost)}))
	if err != nil {
		return nil, fmt.Errorf("count open contacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner string
		var n int
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, fmt.Errorf("scan owner count: %w", err)
		}
		out[owner] = n
	}
	return out, rows.Err()
}

func (r *ContactRepo) CustomFieldDefinitions(ctx context.Context, entityType string) ([]domain.CustomFieldDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, field_key, name, field_type
		FROM custom_field_definitions
		WHERE entity_type = $1
		ORDER BY name
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("list custom field definitions: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomFieldDefinition
	for rows.Next() {
		var d domain.CustomFieldDefinition
		if err := rows.Scan(&d.ID, &d.EntityType, &d.Key, &d.Name, &d.FieldType); err != nil {
			return nil, fmt.Errorf("scan custom field definition: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CustomFieldValues returns values of entityType's fields. A nil entityIDs
// loads values for every entity; an empty non-nil slice loads nothing.
func (r *ContactRepo) CustomFieldValues(ctx context.Context, entityType string, entityIDs []string) ([]domain.CustomFieldValue, error) {
	q := `
		SELECT v.id, v.definition_id, v.entity_id, COALESCE(v.value,'')
		FROM custom_field_values v
		JOIN custom_field_definitions d ON d.id = v.definition_id
		WHERE d.entity_type = $1`
	args := []interface{}{entityType}
	if entityIDs != nil {
		if len(entityIDs) == 0 {
			return nil, nil
		}
		q += ` AND v.entity_id = ANY($2)`
		args = append(args, pq.Array(entityIDs))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list custom field values: %w", err)
	}
	defer rows.Close()

	var out []domain.CustomFieldValue
	for rows.Next() {
		var v domain.CustomFieldValue
		if err := rows.Scan(&v.ID, &v.DefinitionID, &v.EntityID, &v.Value); err != nil {
			return nil, fmt.Errorf("scan custom field value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

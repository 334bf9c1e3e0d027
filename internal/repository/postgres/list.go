package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-automation/internal/domain"
)

// ListRepo reads marketing lists and maintains their membership.
type ListRepo struct{ db *sql.DB }

// NewListRepo creates a Postgres-backed list repository.
func NewListRepo(db *sql.DB) *ListRepo { return &ListRepo{db: db} }

func (r *ListRepo) ActiveDynamicLists(ctx context.Context) ([]domain.MarketingList, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, list_type, status, dynamic_criteria, member_count,
		       last_synced_at, created_at, updated_at
		FROM marketing_lists
		WHERE list_type = $1 AND status = $2
		ORDER BY id
	`, domain.ListDynamic, domain.ListActive)
	if err != nil {
		return nil, fmt.Errorf("list dynamic lists: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketingList
	for rows.Next() {
		var l domain.MarketingList
		var criteria []byte
		var synced sql.NullTime
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &l.Status, &criteria, &l.MemberCount,
			&synced, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		l.DynamicCriteria = criteria
		l.LastSyncedAt = timePtr(synced)
		out = append(out, l)
	}
	return out, rows.Err()
}

const memberColumns = `id, list_id, contact_id, email, status, COALESCE(source,''), subscribed_at`

func (r *ListRepo) ListMembers(ctx context.Context, listID string) ([]domain.MarketingListMember, error) {
	return r.queryMembers(ctx, `SELECT `+memberColumns+` FROM marketing_list_members WHERE list_id = $1`, listID)
}

func (r *ListRepo) SubscribedMembers(ctx context.Context, listID string) ([]domain.MarketingListMember, error) {
	return r.queryMembers(ctx,
		`SELECT `+memberColumns+` FROM marketing_list_members WHERE list_id = $1 AND status = $2 ORDER BY subscribed_at, id`,
		listID, domain.MemberSubscribed)
}

func (r *ListRepo) queryMembers(ctx context.Context, q string, args ...interface{}) ([]domain.MarketingListMember, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketingListMember
	for rows.Next() {
		var m domain.MarketingListMember
		if err := rows.Scan(&m.ID, &m.ListID, &m.ContactID, &m.Email, &m.Status, &m.Source, &m.SubscribedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ApplyMembershipDiff removes and inserts members, then moves the list's
// member count by the rows actually inserted minus those deleted and stamps
// the sync time, all in one transaction.
func (r *ListRepo) ApplyMembershipDiff(ctx context.Context, listID string, add []domain.MarketingListMember,
	removeIDs []string, syncedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin membership tx: %w", err)
	}
	defer tx.Rollback()

	var delta int64
	if len(removeIDs) > 0 {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM marketing_list_members WHERE list_id = $1 AND id = ANY($2)`,
			listID, pq.Array(removeIDs))
		if err != nil {
			return fmt.Errorf("remove members: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove members: %w", err)
		}
		delta -= n
	}

	if len(add) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO marketing_list_members (id, list_id, contact_id, email, status, source, subscribed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (list_id, contact_id) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("prepare member insert: %w", err)
		}
		defer stmt.Close()
		for _, m := range add {
			res, err := stmt.ExecContext(ctx, m.ID, listID, m.ContactID, m.Email, m.Status, m.Source, m.SubscribedAt)
			if err != nil {
				return fmt.Errorf("insert member %s: %w", m.ContactID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert member %s: %w", m.ContactID, err)
			}
			delta += n
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE marketing_lists
		SET member_count = GREATEST(member_count + $2, 0),
		    last_synced_at = $3, updated_at = NOW()
		WHERE id = $1
	`, listID, delta, syncedAt); err != nil {
		return fmt.Errorf("update list sync: %w", err)
	}
	return tx.Commit()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/service/campaign"
)

// CampaignRepo implements the campaign-specific half of campaign.Repository
// against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, campaign_type, status, marketing_list_id, scheduled_for,
	started_at, completed_at, sent_count, created_at, updated_at`

func scanCampaign(row rowScanner) (domain.MarketingCampaign, error) {
	var c domain.MarketingCampaign
	var scheduled, started, completed sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Status, &c.MarketingListID, &scheduled,
		&started, &completed, &c.SentCount, &c.CreatedAt, &c.UpdatedAt)
	c.ScheduledFor = timePtr(scheduled)
	c.StartedAt = timePtr(started)
	c.CompletedAt = timePtr(completed)
	return c, err
}

func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (*domain.MarketingCampaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM marketing_campaigns WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) DueScheduledCampaigns(ctx context.Context, now time.Time) ([]domain.MarketingCampaign, error) {
	return r.queryCampaigns(ctx, `
		SELECT `+campaignColumns+`
		FROM marketing_campaigns
		WHERE status = $1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
		ORDER BY scheduled_for, id
	`, domain.CampaignScheduled, now)
}

func (r *CampaignRepo) ActiveDripCampaigns(ctx context.Context) ([]domain.MarketingCampaign, error) {
	return r.queryCampaigns(ctx, `
		SELECT `+campaignColumns+`
		FROM marketing_campaigns
		WHERE status = $1 AND campaign_type = $2
		ORDER BY started_at, id
	`, domain.CampaignActive, domain.CampaignDrip)
}

func (r *CampaignRepo) queryCampaigns(ctx context.Context, q string, args ...interface{}) ([]domain.MarketingCampaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketingCampaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActivateCampaign is a compare-and-set on status.
func (r *CampaignRepo) ActivateCampaign(ctx context.Context, id string, from []domain.CampaignStatus, startedAt time.Time) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE marketing_campaigns SET status = $2, started_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, domain.CampaignActive, startedAt, pq.Array(statuses))
	if err != nil {
		return false, fmt.Errorf("activate campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE marketing_campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) CompleteCampaign(ctx context.Context, id string, completedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE marketing_campaigns SET status = $2, completed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, domain.CampaignCompleted, completedAt, domain.CampaignActive)
	if err != nil {
		return fmt.Errorf("complete campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) ListSteps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, order_index, delay_minutes, subject,
		       COALESCE(html_content,''), COALESCE(plain_text_content,''), sent_count
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY order_index
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignStep
	for rows.Next() {
		var s domain.CampaignStep
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.OrderIndex, &s.DelayMinutes, &s.Subject,
			&s.HTMLContent, &s.PlainTextContent, &s.SentCount); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateRecipients inserts the rows in one transaction and returns how many
// were written. A contact already enrolled in the campaign is skipped.
func (r *CampaignRepo) CreateRecipients(ctx context.Context, recipients []domain.CampaignRecipient) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients
			(id, campaign_id, contact_id, email, status, current_step_id, next_step_scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare recipient insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rc := range recipients {
		res, err := stmt.ExecContext(ctx, rc.ID, rc.CampaignID, rc.ContactID, rc.Email, rc.Status,
			rc.CurrentStepID, rc.NextStepScheduledAt, rc.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("insert recipient %s: %w", rc.ContactID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert recipient %s: %w", rc.ContactID, err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enrollment: %w", err)
	}
	return int(inserted), nil
}

func (r *CampaignRepo) DueRecipients(ctx context.Context, campaignID string, now time.Time, limit int) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, contact_id, email, status, current_step_id,
		       next_step_scheduled_at, sent_at, created_at
		FROM campaign_recipients
		WHERE campaign_id = $1 AND status = $2
		  AND current_step_id IS NOT NULL AND next_step_scheduled_at <= $3
		ORDER BY next_step_scheduled_at, id
		LIMIT $4
	`, campaignID, domain.RecipientActive, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		var rc domain.CampaignRecipient
		var step sql.NullString
		var next, sent sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.CampaignID, &rc.ContactID, &rc.Email, &rc.Status, &step,
			&next, &sent, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		rc.CurrentStepID = stringPtr(step)
		rc.NextStepScheduledAt = timePtr(next)
		rc.SentAt = timePtr(sent)
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) CountActiveRecipients(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = $1 AND status = $2`,
		campaignID, domain.RecipientActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active recipients: %w", err)
	}
	return n, nil
}

// CommitStepBatch writes recipient state, execution logs and sent counters
// for one batch in a single transaction.
func (r *CampaignRepo) CommitStepBatch(ctx context.Context, b *campaign.StepBatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin step batch tx: %w", err)
	}
	defer tx.Rollback()

	if len(b.Recipients) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE campaign_recipients
			SET status = $2, current_step_id = $3, next_step_scheduled_at = $4, sent_at = $5
			WHERE id = $1`)
		if err != nil {
			return fmt.Errorf("prepare recipient update: %w", err)
		}
		defer stmt.Close()
		for _, rc := range b.Recipients {
			if _, err := stmt.ExecContext(ctx, rc.ID, rc.Status, rc.CurrentStepID, rc.NextStepScheduledAt, rc.SentAt); err != nil {
				return fmt.Errorf("update recipient %s: %w", rc.ID, err)
			}
		}
	}

	if len(b.Logs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO campaign_step_execution_logs
				(id, campaign_id, step_id, recipient_id, executed_at, status, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`)
		if err != nil {
			return fmt.Errorf("prepare log insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range b.Logs {
			if _, err := stmt.ExecContext(ctx, l.ID, l.CampaignID, l.StepID, l.RecipientID, l.ExecutedAt,
				l.Status, l.ErrorMessage); err != nil {
				return fmt.Errorf("insert execution log: %w", err)
			}
		}
	}

	if b.CampaignSent > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE marketing_campaigns SET sent_count = sent_count + $2, updated_at = NOW() WHERE id = $1`,
			b.CampaignID, b.CampaignSent); err != nil {
			return fmt.Errorf("update campaign sent count: %w", err)
		}
	}

	stepIDs := make([]string, 0, len(b.StepSent))
	for id := range b.StepSent {
		stepIDs = append(stepIDs, id)
	}
	sort.Strings(stepIDs)
	for _, id := range stepIDs {
		if b.StepSent[id] == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE campaign_steps SET sent_count = sent_count + $2 WHERE id = $1`,
			id, b.StepSent[id]); err != nil {
			return fmt.Errorf("update step sent count: %w", err)
		}
	}
	return tx.Commit()
}

package campaign

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/pkg/metrics"
	"github.com/ignite/crm-automation/internal/sending"
)

// DefaultBatchSize bounds the due recipients processed per campaign per poll.
const DefaultBatchSize = 50

// Options configures a Service.
type Options struct {
	TrackingBaseURL string
	BatchSize       int
	LiquidEnabled   bool
}

// Service drives campaigns from Scheduled to Completed and moves each drip
// recipient through its steps. Like the segment reconciler it assumes a
// single poller at a time.
type Service struct {
	repo         Repository
	suppressions SuppressionFilter
	transport    sending.Transport
	renderer     *Renderer
	batchSize    int
	now          func() time.Time
}

// NewService creates a campaign service. suppressions may be nil, in which
// case nobody is filtered at enrollment.
func NewService(repo Repository, suppressions SuppressionFilter, transport sending.Transport, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Service{
		repo:         repo,
		suppressions: suppressions,
		transport:    transport,
		renderer:     NewRenderer(opts.TrackingBaseURL, opts.LiquidEnabled),
		batchSize:    opts.BatchSize,
		now:          time.Now,
	}
}

// Result summarizes one ProcessActiveCampaigns poll.
type Result struct {
	CampaignsStarted    int `json:"campaigns_started"`
	RecipientsEnrolled  int `json:"recipients_enrolled"`
	StepsExecuted       int `json:"steps_executed"`
	StepsFailed         int `json:"steps_failed"`
	RecipientErrors     int `json:"recipient_errors"`
	RecipientsCompleted int `json:"recipients_completed"`
	CampaignsCompleted  int `json:"campaigns_completed"`
}

func (r *Result) add(o Result) {
	r.CampaignsStarted += o.CampaignsStarted
	r.RecipientsEnrolled += o.RecipientsEnrolled
	r.StepsExecuted += o.StepsExecuted
	r.StepsFailed += o.StepsFailed
	r.RecipientErrors += o.RecipientErrors
	r.RecipientsCompleted += o.RecipientsCompleted
	r.CampaignsCompleted += o.CampaignsCompleted
}

// ProcessActiveCampaigns starts due scheduled campaigns, then executes due
// steps for every active drip campaign. Nothing is returned as an error;
// failures are logged and the affected campaign or recipient is skipped.
func (s *Service) ProcessActiveCampaigns(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[campaign] poll aborted", "panic", r)
		}
	}()

	now := s.now().UTC()
	s.startDue(ctx, now, &res)
	s.advanceDrips(ctx, now, &res)

	if res != (Result{}) {
		logger.Info("[campaign] poll complete",
			"started", res.CampaignsStarted, "enrolled", res.RecipientsEnrolled,
			"executed", res.StepsExecuted, "failed", res.StepsFailed,
			"completed", res.CampaignsCompleted)
	}
	return res
}

// StartCampaign activates a draft or scheduled campaign immediately and
// enrolls its list. It returns false if the campaign is missing, in another
// status, or enrollment fails.
func (s *Service) StartCampaign(ctx context.Context, campaignID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[campaign] start aborted", "campaign_id", campaignID, "panic", r)
			ok = false
		}
	}()

	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("[campaign] campaign not found", "campaign_id", campaignID)
		} else {
			logger.Error("[campaign] load campaign failed", "campaign_id", campaignID, "error", err)
		}
		return false
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		logger.Warn("[campaign] cannot start", "campaign_id", c.ID, "status", c.Status,
			"error", ErrInvalidTransition)
		return false
	}

	_, ok = s.start(ctx, c, s.now().UTC())
	return ok
}

func (s *Service) startDue(ctx context.Context, now time.Time, res *Result) {
	due, err := s.repo.DueScheduledCampaigns(ctx, now)
	if err != nil {
		logger.Error("[campaign] load scheduled campaigns failed", "error", err)
		return
	}
	for i := range due {
		n, ok := s.start(ctx, &due[i], now)
		if !ok {
			continue
		}
		res.CampaignsStarted++
		res.RecipientsEnrolled += n
	}
}

// start moves c to Active and enrolls its list. A failed enrollment puts
// the previous status back so the next poll retries.
func (s *Service) start(ctx context.Context, c *domain.MarketingCampaign, now time.Time) (int, bool) {
	prev := c.Status
	changed, err := s.repo.ActivateCampaign(ctx, c.ID, []domain.CampaignStatus{prev}, now)
	if err != nil {
		logger.Error("[campaign] activate failed", "campaign_id", c.ID, "error", err)
		return 0, false
	}
	if !changed {
		logger.Warn("[campaign] status changed underneath, not starting", "campaign_id", c.ID, "status", prev)
		return 0, false
	}
	c.Status = domain.CampaignActive
	c.StartedAt = &now

	n, err := s.enroll(ctx, c, now)
	if err != nil {
		logger.Error("[campaign] enrollment failed", "campaign_id", c.ID, "error", err)
		if rbErr := s.repo.UpdateStatus(ctx, c.ID, prev); rbErr != nil {
			logger.Error("[campaign] status rollback failed", "campaign_id", c.ID, "error", rbErr)
		}
		c.Status = prev
		c.StartedAt = nil
		return 0, false
	}

	metrics.CampaignEnrollments.Add(float64(n))
	logger.Info("[campaign] started", "campaign_id", c.ID, "type", c.Type, "enrolled", n)
	return n, true
}

// enroll creates one recipient per subscribed, unsuppressed member of the
// campaign's list.
func (s *Service) enroll(ctx context.Context, c *domain.MarketingCampaign, now time.Time) (int, error) {
	var first *domain.CampaignStep
	if c.IsDrip() {
		steps, err := s.repo.ListSteps(ctx, c.ID)
		if err != nil {
			return 0, err
		}
		if first = firstStep(steps); first == nil {
			logger.Warn("[campaign] drip campaign has no steps, enrolling nobody", "campaign_id", c.ID,
				"error", ErrNoSteps)
			return 0, nil
		}
	}

	members, err := s.repo.SubscribedMembers(ctx, c.MarketingListID)
	if err != nil {
		return 0, err
	}
	eligible := make([]domain.MarketingListMember, 0, len(members))
	emails := make([]string, 0, len(members))
	for _, m := range members {
		if m.Status != domain.MemberSubscribed || strings.TrimSpace(m.Email) == "" {
			continue
		}
		eligible = append(eligible, m)
		emails = append(emails, m.Email)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	var suppressed map[string]struct{}
	if s.suppressions != nil {
		if suppressed, err = s.suppressions.FilterSuppressed(ctx, emails); err != nil {
			return 0, err
		}
	}

	recipients := make([]domain.CampaignRecipient, 0, len(eligible))
	for _, m := range eligible {
		if _, skip := suppressed[strings.ToLower(strings.TrimSpace(m.Email))]; skip {
			continue
		}
		r := domain.CampaignRecipient{
			ID:         uuid.New().String(),
			CampaignID: c.ID,
			ContactID:  m.ContactID,
			Email:      m.Email,
			Status:     domain.RecipientPending,
			CreatedAt:  now,
		}
		if first != nil {
			stepID := first.ID
			at := now.Add(first.Delay())
			r.Status = domain.RecipientActive
			r.CurrentStepID = &stepID
			r.NextStepScheduledAt = &at
		}
		recipients = append(recipients, r)
	}
	if skipped := len(eligible) - len(recipients); skipped > 0 {
		logger.Info("[campaign] suppressed members skipped", "campaign_id", c.ID, "count", skipped)
	}
	if len(recipients) == 0 {
		return 0, nil
	}
	n, err := s.repo.CreateRecipients(ctx, recipients)
	if err != nil {
		return 0, err
	}
	if dup := len(recipients) - n; dup > 0 {
		logger.Info("[campaign] already enrolled members skipped", "campaign_id", c.ID, "count", dup)
	}
	return n, nil
}

func (s *Service) advanceDrips(ctx context.Context, now time.Time, res *Result) {
	campaigns, err := s.repo.ActiveDripCampaigns(ctx)
	if err != nil {
		logger.Error("[campaign] load active drip campaigns failed", "error", err)
		return
	}
	for i := range campaigns {
		c := &campaigns[i]
		res.add(s.runSteps(ctx, c, now))

		active, err := s.repo.CountActiveRecipients(ctx, c.ID)
		if err != nil {
			logger.Error("[campaign] count active recipients failed", "campaign_id", c.ID, "error", err)
			continue
		}
		if active > 0 {
			continue
		}
		if err := s.repo.CompleteCampaign(ctx, c.ID, now); err != nil {
			logger.Error("[campaign] complete failed", "campaign_id", c.ID, "error", err)
			continue
		}
		res.CampaignsCompleted++
		logger.Info("[campaign] completed", "campaign_id", c.ID)
	}
}

// runSteps executes one batch of due recipients for c and persists the
// batch in a single commit. Counts are only reported once the commit
// succeeds.
func (s *Service) runSteps(ctx context.Context, c *domain.MarketingCampaign, now time.Time) Result {
	var res Result
	due, err := s.repo.DueRecipients(ctx, c.ID, now, s.batchSize)
	if err != nil {
		logger.Error("[campaign] load due recipients failed", "campaign_id", c.ID, "error", err)
		return res
	}
	if len(due) == 0 {
		return res
	}

	steps, err := s.repo.ListSteps(ctx, c.ID)
	if err != nil {
		logger.Error("[campaign] load steps failed", "campaign_id", c.ID, "error", err)
		return res
	}
	contacts, err := s.contactsFor(ctx, due)
	if err != nil {
		logger.Error("[campaign] load contacts failed", "campaign_id", c.ID, "error", err)
		return res
	}

	batch := &StepBatch{CampaignID: c.ID, StepSent: make(map[string]int)}
	for i := range due {
		s.executeRecipient(ctx, c, steps, contacts, due[i], now, batch, &res)
	}
	if batch.Empty() {
		return res
	}
	if err := s.repo.CommitStepBatch(ctx, batch); err != nil {
		logger.Error("[campaign] commit step batch failed", "campaign_id", c.ID,
			"recipients", len(batch.Recipients), "error", err)
		return Result{}
	}
	return res
}

func (s *Service) contactsFor(ctx context.Context, due []domain.CampaignRecipient) (map[string]*domain.Contact, error) {
	ids := make([]string, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ContactID)
	}
	contacts, err := s.repo.ContactsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Contact, len(contacts))
	for i := range contacts {
		out[contacts[i].ID] = &contacts[i]
	}
	return out, nil
}

// executeRecipient sends r its current step and advances it. The outcome
// is appended to batch; a panic drops this recipient only.
func (s *Service) executeRecipient(ctx context.Context, c *domain.MarketingCampaign, steps []domain.CampaignStep,
	contacts map[string]*domain.Contact, r domain.CampaignRecipient, now time.Time, batch *StepBatch, res *Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[campaign] recipient step aborted", "campaign_id", c.ID, "recipient_id", r.ID, "panic", p)
			metrics.CampaignSteps.WithLabelValues("error").Inc()
			res.RecipientErrors++
		}
	}()

	var cur *domain.CampaignStep
	if r.CurrentStepID != nil {
		cur = stepByID(steps, *r.CurrentStepID)
	}
	if cur == nil {
		logger.Warn("[campaign] completing recipient without a step", "campaign_id", c.ID,
			"recipient_id", r.ID, "error", ErrStepMissing)
		completeRecipient(&r)
		batch.Recipients = append(batch.Recipients, r)
		res.RecipientsCompleted++
		return
	}

	contact := contacts[r.ContactID]
	if contact == nil {
		contact = &domain.Contact{ID: r.ContactID, Email: r.Email}
	}
	subject, body := s.renderer.Render(cur, contact, r.ID)

	entry := domain.CampaignStepExecutionLog{
		ID:          uuid.New().String(),
		CampaignID:  c.ID,
		StepID:      cur.ID,
		RecipientID: r.ID,
		ExecutedAt:  now,
		Status:      domain.ExecutionSuccess,
	}
	err := s.transport.Send(ctx, sending.Message{
		To:      r.Email,
		Subject: subject,
		Body:    body,
		IsHTML:  true,
		Tags: map[string]string{
			"campaign_id":  c.ID,
			"step_id":      cur.ID,
			"recipient_id": r.ID,
		},
	})
	if err != nil {
		logger.Error("[campaign] step delivery failed", "campaign_id", c.ID, "step_id", cur.ID,
			"recipient_id", r.ID, "email", r.Email, "error", err)
		entry.Status = domain.ExecutionFailed
		entry.ErrorMessage = err.Error()
		metrics.CampaignSteps.WithLabelValues(string(domain.ExecutionFailed)).Inc()
		res.StepsFailed++
	} else {
		metrics.CampaignSteps.WithLabelValues(string(domain.ExecutionSuccess)).Inc()
		res.StepsExecuted++
	}

	sentAt := now
	r.SentAt = &sentAt
	if next := nextStep(steps, cur.OrderIndex); next != nil {
		stepID := next.ID
		at := now.Add(next.Delay())
		r.CurrentStepID = &stepID
		r.NextStepScheduledAt = &at
	} else {
		completeRecipient(&r)
		res.RecipientsCompleted++
	}

	batch.Recipients = append(batch.Recipients, r)
	batch.Logs = append(batch.Logs, entry)
	batch.CampaignSent++
	batch.StepSent[cur.ID]++
}

func completeRecipient(r *domain.CampaignRecipient) {
	r.Status = domain.RecipientCompleted
	r.CurrentStepID = nil
	r.NextStepScheduledAt = nil
}

func firstStep(steps []domain.CampaignStep) *domain.CampaignStep {
	var first *domain.CampaignStep
	for i := range steps {
		if first == nil || steps[i].OrderIndex < first.OrderIndex {
			first = &steps[i]
		}
	}
	return first
}

// nextStep returns the step with the smallest order index above after.
func nextStep(steps []domain.CampaignStep, after int) *domain.CampaignStep {
	var next *domain.CampaignStep
	for i := range steps {
		if steps[i].OrderIndex <= after {
			continue
		}
		if next == nil || steps[i].OrderIndex < next.OrderIndex {
			next = &steps[i]
		}
	}
	return next
}

func stepByID(steps []domain.CampaignStep, id string) *domain.CampaignStep {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i]
		}
	}
	return nil
}

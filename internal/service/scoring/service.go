package scoring

import (
	"context"
	"errors"
	"strings"

	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/pkg/metrics"
)

// contactPrefix marks a condition field that resolves on the contact.
const contactPrefix = "contact."

// Service evaluates lead scoring rules.
type Service struct {
	repo Repository
}

// NewService creates a scoring service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Result describes what one trigger did to a contact's score.
type Result struct {
	ContactID    string   `json:"contact_id"`
	TriggerType  string   `json:"trigger_type"`
	MatchedRules []string `json:"matched_rules"`
	PointsDelta  int      `json:"points_delta"`
	LeadScore    int      `json:"lead_score"`
}

// EvaluateRules applies every active rule for triggerType to the contact.
// eventData may be nil; rules that read it then fail to match. It returns
// nil when the contact does not exist or the store fails, after logging.
func (s *Service) EvaluateRules(ctx context.Context, triggerType, contactID string, eventData *criteria.Payload) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[scoring] evaluation aborted", "contact_id", contactID, "trigger", triggerType, "panic", r)
			res = nil
		}
	}()

	if triggerType == "" {
		logger.Warn("[scoring] evaluation skipped", "contact_id", contactID, "error", ErrTriggerRequired)
		return nil
	}

	contact, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("[scoring] contact not found", "contact_id", contactID, "trigger", triggerType)
		} else {
			logger.Error("[scoring] load contact failed", "contact_id", contactID, "error", err)
		}
		return nil
	}

	rules, err := s.repo.ActiveScoringRules(ctx, triggerType)
	if err != nil {
		logger.Error("[scoring] load rules failed", "trigger", triggerType, "error", err)
		return nil
	}

	res = &Result{ContactID: contact.ID, TriggerType: triggerType, LeadScore: contact.LeadScore}
	if len(rules) == 0 {
		return res
	}

	ev := &evaluator{svc: s, contact: contact, payload: eventData}
	for i := range rules {
		rule := &rules[i]
		conds, err := criteria.ParseConditions(rule.Conditions)
		if err != nil {
			// Malformed conditions match everything.
			logger.Warn("[scoring] malformed rule conditions", "rule_id", rule.ID, "error", err)
			conds = nil
		}
		ok, err := ev.matches(ctx, conds)
		if err != nil {
			logger.Error("[scoring] load custom fields failed", "contact_id", contact.ID, "error", err)
			return nil
		}
		if !ok {
			continue
		}
		res.MatchedRules = append(res.MatchedRules, rule.ID)
		res.PointsDelta += rule.PointsValue
		metrics.ScoringRuleMatches.WithLabelValues(triggerType).Inc()
	}

	if res.PointsDelta == 0 {
		return res
	}
	score, err := s.repo.AddLeadScore(ctx, contact.ID, res.PointsDelta)
	if err != nil {
		logger.Error("[scoring] update lead score failed", "contact_id", contact.ID, "delta", res.PointsDelta, "error", err)
		return nil
	}
	res.LeadScore = score
	logger.Info("[scoring] lead score updated", "contact_id", contact.ID, "trigger", triggerType,
		"delta", res.PointsDelta, "score", score)
	return res
}

// evaluator holds the per-call state so custom fields are loaded at most
// once, and only when a rule reads one.
type evaluator struct {
	svc      *Service
	contact  *domain.Contact
	payload  *criteria.Payload
	resolver *criteria.Resolver
}

func (e *evaluator) matches(ctx context.Context, conds []criteria.Condition) (bool, error) {
	for _, c := range conds {
		field, onContact := contactField(c.Field)
		if !onContact {
			if !criteria.MatchPath(c, e.payload) {
				return false, nil
			}
			continue
		}
		r, err := e.contactResolver(ctx, field)
		if err != nil {
			return false, err
		}
		c.Field = field
		if !criteria.Match(c, r.Resolve(e.contact, field)) {
			return false, nil
		}
	}
	return true, nil
}

func (e *evaluator) contactResolver(ctx context.Context, field string) (*criteria.Resolver, error) {
	if e.resolver != nil {
		return e.resolver, nil
	}
	if criteria.IsContactAttribute(field) {
		return criteria.NewResolver(nil), nil
	}
	defs, err := e.svc.repo.CustomFieldDefinitions(ctx, domain.EntityContact)
	if err != nil {
		return nil, err
	}
	var values []domain.CustomFieldValue
	if len(defs) > 0 {
		values, err = e.svc.repo.CustomFieldValues(ctx, domain.EntityContact, []string{e.contact.ID})
		if err != nil {
			return nil, err
		}
	}
	e.resolver = criteria.NewResolver(criteria.NewCustomFields(domain.EntityContact, defs, values))
	return e.resolver, nil
}

// contactField strips the "Contact." prefix, ignoring case.
func contactField(field string) (string, bool) {
	if len(field) > len(contactPrefix) && strings.EqualFold(field[:len(contactPrefix)], contactPrefix) {
		return field[len(contactPrefix):], true
	}
	return field, false
}

package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/distlock"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/pkg/metrics"
)

// Score bands for the score-based strategy.
const (
	hotScore  = 70
	warmScore = 40
)

// LockFactory hands out a fresh distributed lock per key.
type LockFactory interface {
	Lock(key string) distlock.DistLock
}

// Service implements lead assignment.
type Service struct {
	repo  Repository
	locks LockFactory

	lockAttempts int
	lockBackoff  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLocks serializes round-robin cursor updates per rule.
func WithLocks(f LockFactory) Option {
	return func(s *Service) { s.locks = f }
}

// NewService creates an assignment service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, lockAttempts: 5, lockBackoff: 50 * time.Millisecond}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Assignment is the outcome of a successful AssignLead.
type Assignment struct {
	ContactID string                `json:"contact_id"`
	RuleID    string                `json:"rule_id"`
	Strategy  domain.AssignmentType `json:"strategy"`
	OwnerID   string                `json:"owner_id"`
}

// AssignLead picks an owner for the contact from the first matching rule
// and persists it. It returns nil when the contact is missing, no rule
// matches, or anything fails; failures are logged.
func (s *Service) AssignLead(ctx context.Context, contactID string) (out *Assignment) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[assignment] aborted", "contact_id", contactID, "panic", r)
			out = nil
		}
	}()

	contact, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("[assignment] contact not found", "contact_id", contactID)
		} else {
			logger.Error("[assignment] load contact failed", "contact_id", contactID, "error", err)
		}
		return nil
	}

	rules, err := s.repo.ActiveAssignmentRules(ctx)
	if err != nil {
		logger.Error("[assignment] load rules failed", "error", err)
		return nil
	}

	var resolver *criteria.Resolver
	for i := range rules {
		rule := &rules[i]
		conds, err := criteria.ParseConditions(rule.Criteria)
		if err != nil {
			// Malformed criteria match everything.
			logger.Warn("[assignment] malformed rule criteria", "rule_id", rule.ID, "error", err)
			conds = nil
		}
		if needsCustomFields(conds) && resolver == nil {
			if resolver, err = s.loadResolver(ctx, contact.ID); err != nil {
				logger.Error("[assignment] load custom fields failed", "contact_id", contact.ID, "error", err)
				return nil
			}
		}
		r := resolver
		if r == nil {
			r = criteria.NewResolver(nil)
		}
		if !r.MatchContact(conds, contact) {
			continue
		}

		owner, err := s.pickOwner(ctx, rule, contact)
		if err != nil {
			logger.Warn("[assignment] rule matched but no owner chosen", "rule_id", rule.ID,
				"contact_id", contact.ID, "error", err)
			return nil
		}
		if err := s.repo.SetContactOwner(ctx, contact.ID, owner); err != nil {
			logger.Error("[assignment] persist owner failed", "contact_id", contact.ID, "error", err)
			return nil
		}
		metrics.Assignments.WithLabelValues(string(rule.AssignmentType)).Inc()
		logger.Info("[assignment] lead assigned", "contact_id", contact.ID, "rule_id", rule.ID,
			"strategy", rule.AssignmentType, "owner_id", owner)
		return &Assignment{ContactID: contact.ID, RuleID: rule.ID, Strategy: rule.AssignmentType, OwnerID: owner}
	}

	logger.Info("[assignment] no rule matched", "contact_id", contact.ID)
	return nil
}

func needsCustomFields(conds []criteria.Condition) bool {
	for _, c := range conds {
		if !criteria.IsContactAttribute(c.Field) {
			return true
		}
	}
	return false
}

func (s *Service) loadResolver(ctx context.Context, contactID string) (*criteria.Resolver, error) {
	defs, err := s.repo.CustomFieldDefinitions(ctx, domain.EntityContact)
	if err != nil {
		return nil, err
	}
	var values []domain.CustomFieldValue
	if len(defs) > 0 {
		if values, err = s.repo.CustomFieldValues(ctx, domain.EntityContact, []string{contactID}); err != nil {
			return nil, err
		}
	}
	return criteria.NewResolver(criteria.NewCustomFields(domain.EntityContact, defs, values)), nil
}

func (s *Service) pickOwner(ctx context.Context, rule *domain.LeadAssignmentRule, c *domain.Contact) (string, error) {
	ids := rule.AssignToUserIDs
	if len(ids) == 0 {
		return "", ErrNoCandidates
	}
	switch rule.AssignmentType {
	case domain.AssignRoundRobin:
		return s.roundRobin(ctx, rule)
	case domain.AssignWorkload:
		return s.leastLoaded(ctx, ids)
	case domain.AssignScoreBased:
		return ByScore(ids, c.LeadScore), nil
	case domain.AssignTerritory:
		// Territory matching is not implemented; the first candidate wins.
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, rule.AssignmentType)
	}
}

// NextRoundRobin returns the cursor after last for n candidates. A nil
// cursor counts as 0, so a fresh rule starts at index 1 (0 when n is 1).
func NextRoundRobin(last *int, n int) int {
	cur := 0
	if last != nil {
		cur = *last
	}
	next := (cur + 1) % n
	if next < 0 {
		next += n
	}
	return next
}

// ByScore maps a lead score onto the candidate list: hot leads go to the
// first user, warm ones to the middle, the rest to the last.
func ByScore(ids []string, score int) string {
	switch {
	case score >= hotScore:
		return ids[0]
	case score >= warmScore:
		if len(ids) == 1 {
			return ids[0]
		}
		return ids[len(ids)/2]
	default:
		return ids[len(ids)-1]
	}
}

func (s *Service) roundRobin(ctx context.Context, rule *domain.LeadAssignmentRule) (string, error) {
	if s.locks == nil {
		return s.advanceCursor(ctx, rule)
	}

	var owner string
	for attempt := 0; attempt < s.lockAttempts; attempt++ {
		err := distlock.Run(ctx, s.locks.Lock("assignment-rule:"+rule.ID), func(ctx context.Context) error {
			fresh, err := s.repo.GetAssignmentRule(ctx, rule.ID)
			if err != nil {
				return fmt.Errorf("reload rule: %w", err)
			}
			owner, err = s.advanceCursor(ctx, fresh)
			return err
		})
		if err == nil {
			return owner, nil
		}
		if !errors.Is(err, distlock.ErrNotAcquired) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.lockBackoff):
		}
	}
	return "", ErrCursorBusy
}

func (s *Service) advanceCursor(ctx context.Context, rule *domain.LeadAssignmentRule) (string, error) {
	ids := rule.AssignToUserIDs
	if len(ids) == 0 {
		return "", ErrNoCandidates
	}
	next := NextRoundRobin(rule.LastAssignedIndex, len(ids))
	if err := s.repo.SetLastAssignedIndex(ctx, rule.ID, next); err != nil {
		return "", fmt.Errorf("persist cursor: %w", err)
	}
	return ids[next], nil
}

// leastLoaded picks the candidate with the fewest open contacts; ties go to
// the earlier candidate.
func (s *Service) leastLoaded(ctx context.Context, ids []string) (string, error) {
	counts, err := s.repo.CountOpenContactsByOwner(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("count workload: %w", err)
	}
	best := ids[0]
	for _, id := range ids[1:] {
		if counts[id] < counts[best] {
			best = id
		}
	}
	return best, nil
}

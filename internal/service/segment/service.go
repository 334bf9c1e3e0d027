package segment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/logger"
	"github.com/ignite/crm-automation/internal/pkg/metrics"
)

// Service reconciles dynamic list membership. It is not safe to run two
// polls concurrently against the same store; the worker guards that with a
// distributed lock.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a segment service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Result summarizes one reconciliation poll.
type Result struct {
	ListsProcessed int `json:"lists_processed"`
	ListsChanged   int `json:"lists_changed"`
	ListsFailed    int `json:"lists_failed"`
	Added          int `json:"added"`
	Removed        int `json:"removed"`
}

// Diff is the membership change computed for one list.
type Diff struct {
	Add       []domain.MarketingListMember
	RemoveIDs []string
}

// Empty reports whether applying the diff would change nothing.
func (d Diff) Empty() bool { return len(d.Add) == 0 && len(d.RemoveIDs) == 0 }

// snapshot is the contact state shared by every list in one poll.
type snapshot struct {
	contacts []domain.Contact
	resolver *criteria.Resolver
}

// ProcessDynamicLists recomputes membership of every active dynamic list.
// Failures are logged per list and never returned; one bad list does not
// stop the others.
func (s *Service) ProcessDynamicLists(ctx context.Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[segment] poll aborted", "panic", r)
		}
	}()

	lists, err := s.repo.ActiveDynamicLists(ctx)
	if err != nil {
		logger.Error("[segment] load dynamic lists failed", "error", err)
		return res
	}
	if len(lists) == 0 {
		return res
	}

	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		logger.Error("[segment] load contact snapshot failed", "error", err)
		return res
	}

	for i := range lists {
		list := &lists[i]
		res.ListsProcessed++

		diff, err := s.reconcile(ctx, list, snap)
		if err != nil {
			res.ListsFailed++
			logger.Error("[segment] list skipped", "list_id", list.ID, "list", list.Name, "error", err)
			continue
		}
		if diff.Empty() {
			continue
		}
		res.ListsChanged++
		res.Added += len(diff.Add)
		res.Removed += len(diff.RemoveIDs)
		metrics.SegmentChanges.WithLabelValues("added").Add(float64(len(diff.Add)))
		metrics.SegmentChanges.WithLabelValues("removed").Add(float64(len(diff.RemoveIDs)))
		logger.Info("[segment] list synced", "list_id", list.ID,
			"added", len(diff.Add), "removed", len(diff.RemoveIDs))
	}
	return res
}

func (s *Service) loadSnapshot(ctx context.Context) (*snapshot, error) {
	contacts, err := s.repo.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defs, err := s.repo.CustomFieldDefinitions(ctx, domain.EntityContact)
	if err != nil {
		return nil, fmt.Errorf("custom field definitions: %w", err)
	}
	var values []domain.CustomFieldValue
	if len(defs) > 0 {
		values, err = s.repo.CustomFieldValues(ctx, domain.EntityContact, nil)
		if err != nil {
			return nil, fmt.Errorf("custom field values: %w", err)
		}
	}
	return &snapshot{
		contacts: contacts,
		resolver: criteria.NewResolver(criteria.NewCustomFields(domain.EntityContact, defs, values)),
	}, nil
}

// reconcile computes and applies one list's diff. The returned diff is what
// was written.
func (s *Service) reconcile(ctx context.Context, list *domain.MarketingList, snap *snapshot) (diff Diff, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if list.Type != domain.ListDynamic {
		return Diff{}, ErrNotDynamic
	}
	conds, err := criteria.ParseConditions(list.DynamicCriteria)
	if err != nil {
		return Diff{}, fmt.Errorf("%w: %v", ErrMalformedCriteria, err)
	}

	members, err := s.repo.ListMembers(ctx, list.ID)
	if err != nil {
		return Diff{}, fmt.Errorf("list members: %w", err)
	}

	now := s.now().UTC()
	diff = ComputeDiff(list.ID, conds, snap.contacts, members, snap.resolver, now)
	if diff.Empty() {
		return diff, nil
	}
	if err := s.repo.ApplyMembershipDiff(ctx, list.ID, diff.Add, diff.RemoveIDs, now); err != nil {
		return Diff{}, fmt.Errorf("apply diff: %w", err)
	}
	return diff, nil
}

// ComputeDiff returns the members to insert and the member rows to delete so
// that the list holds exactly the contacts with an email that match conds.
// Contacts are visited in the given order, so the add set is deterministic.
func ComputeDiff(listID string, conds []criteria.Condition, contacts []domain.Contact, members []domain.MarketingListMember, r *criteria.Resolver, now time.Time) Diff {
	matching := make(map[string]struct{})
	var diff Diff

	existing := make(map[string]struct{}, len(members))
	for _, m := range members {
		existing[m.ContactID] = struct{}{}
	}

	for i := range contacts {
		c := &contacts[i]
		if c.IsDeleted || strings.TrimSpace(c.Email) == "" {
			continue
		}
		if !r.MatchContact(conds, c) {
			continue
		}
		if _, dup := matching[c.ID]; dup {
			continue
		}
		matching[c.ID] = struct{}{}
		if _, ok := existing[c.ID]; ok {
			continue
		}
		diff.Add = append(diff.Add, domain.MarketingListMember{
			ID:           uuid.New().String(),
			ListID:       listID,
			ContactID:    c.ID,
			Email:        c.Email,
			Status:       domain.MemberSubscribed,
			Source:       domain.MemberSourceDynamicRule,
			SubscribedAt: now,
		})
	}

	for _, m := range members {
		if _, ok := matching[m.ContactID]; !ok {
			diff.RemoveIDs = append(diff.RemoveIDs, m.ID)
		}
	}
	return diff
}

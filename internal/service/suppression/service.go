package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/crm-automation/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsSuppressed checks whether an email address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, nil
	}
	return s.repo.IsSuppressed(ctx, email)
}

// Suppress adds an email to the list. Idempotent: an existing entry keeps
// its original reason and timestamp.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailMissing
	}
	if reason == "" {
		reason = domain.ReasonManual
	}
	return s.repo.Suppress(ctx, &domain.SuppressionEntry{
		ID:        uuid.New().String(),
		Email:     email,
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	})
}

// Remove deletes a suppression entry.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrEmailMissing
	}
	return s.repo.Remove(ctx, email)
}

// FilterSuppressed returns the normalized members of emails that are on the
// list. Blank addresses are ignored.
func (s *Service) FilterSuppressed(ctx context.Context, emails []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(emails))
	batch := make([]string, 0, len(emails))
	for _, e := range emails {
		e = NormalizeEmail(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		batch = append(batch, e)
	}

	out := make(map[string]struct{})
	if len(batch) == 0 {
		return out, nil
	}
	hits, err := s.repo.SuppressedAmong(ctx, batch)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		out[NormalizeEmail(h)] = struct{}{}
	}
	return out, nil
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// Count returns the total number of suppressed emails.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

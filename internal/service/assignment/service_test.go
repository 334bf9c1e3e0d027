package assignment

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/distlock"
)

// memRepo is an in-memory assignment repository for unit testing.
type memRepo struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
	rules    map[string]*domain.LeadAssignmentRule
	defs     []domain.CustomFieldDefinition
	values   []domain.CustomFieldValue
}

func newMemRepo() *memRepo {
	return &memRepo{
		contacts: make(map[string]*domain.Contact),
		rules:    make(map[string]*domain.LeadAssignmentRule),
	}
}

func (m *memRepo) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) ActiveAssignmentRules(_ context.Context) ([]domain.LeadAssignmentRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LeadAssignmentRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (m *memRepo) GetAssignmentRule(_ context.Context, id string) (*domain.LeadAssignmentRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) SetLastAssignedIndex(_ context.Context, ruleID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := index
	m.rules[ruleID].LastAssignedIndex = &idx
	return nil
}

func (m *memRepo) CountOpenContactsByOwner(_ context.Context, ownerIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		want[id] = true
	}
	out := make(map[string]int)
	for _, c := range m.contacts {
		if c.OwnerID == nil || !want[*c.OwnerID] || c.Status.IsClosed() || c.IsDeleted {
			continue
		}
		out[*c.OwnerID]++
	}
	return out, nil
}

func (m *memRepo) SetContactOwner(_ context.Context, contactID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := ownerID
	m.contacts[contactID].OwnerID = &o
	return nil
}

func (m *memRepo) CustomFieldDefinitions(_ context.Context, _ string) ([]domain.CustomFieldDefinition, error) {
	return m.defs, nil
}

func (m *memRepo) CustomFieldValues(_ context.Context, _ string, _ []string) ([]domain.CustomFieldValue, error) {
	return m.values, nil
}

func (m *memRepo) addRule(id string, prio int, typ domain.AssignmentType, criteria string, users ...string) *domain.LeadAssignmentRule {
	r := &domain.LeadAssignmentRule{
		ID: id, Priority: prio, AssignmentType: typ, Criteria: json.RawMessage(criteria),
		AssignToUserIDs: users, IsActive: true,
	}
	m.rules[id] = r
	return r
}

func (m *memRepo) owner(contactID string) string {
	if o := m.contacts[contactID].OwnerID; o != nil {
		return *o
	}
	return ""
}

func TestAssignLead_RoundRobinVisitsEveryone(t *testing.T) {
	repo := newMemRepo()
	repo.addRule("rr", 1, domain.AssignRoundRobin, `[]`, "A", "B", "C")
	svc := NewService(repo)
	ctx := context.Background()

	var got []string
	for i := 0; i < 6; i++ {
		id := string(rune('a' + i))
		repo.contacts[id] = &domain.Contact{ID: id}
		a := svc.AssignLead(ctx, id)
		if a == nil {
			t.Fatalf("assignment %d returned nil", i)
		}
		got = append(got, a.OwnerID)
	}

	// A fresh cursor starts at index 1.
	want := []string{"B", "C", "A", "B", "C", "A"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round robin order = %v, want %v", got, want)
		}
	}
	if idx := repo.rules["rr"].LastAssignedIndex; idx == nil || *idx != 0 {
		t.Errorf("cursor = %v, want 0", idx)
	}
}

func TestNextRoundRobin(t *testing.T) {
	if got := NextRoundRobin(nil, 1); got != 0 {
		t.Errorf("single candidate: %d", got)
	}
	last := 7
	if got := NextRoundRobin(&last, 3); got != 2 {
		t.Errorf("cursor beyond list: %d", got)
	}
	neg := -5
	if got := NextRoundRobin(&neg, 3); got < 0 || got >= 3 {
		t.Errorf("negative cursor produced %d", got)
	}
}

func TestAssignLead_Workload(t *testing.T) {
	repo := newMemRepo()
	a, b := "A", "B"
	for i, owner := range []*string{&a, &a, &a, &b} {
		id := "owned" + string(rune('0'+i))
		repo.contacts[id] = &domain.Contact{ID: id, OwnerID: owner, Status: domain.ContactQualified}
	}
	// Closed contacts do not count.
	repo.contacts["closed1"] = &domain.Contact{ID: "closed1", OwnerID: &b, Status: domain.ContactClosed}
	repo.contacts["closed2"] = &domain.Contact{ID: "closed2", OwnerID: &b, Status: domain.ContactLost}
	repo.contacts["lead"] = &domain.Contact{ID: "lead"}
	repo.addRule("wl", 1, domain.AssignWorkload, `[]`, "A", "B")

	res := NewService(repo).AssignLead(context.Background(), "lead")
	if res == nil || res.OwnerID != "B" {
		t.Fatalf("expected B, got %+v", res)
	}
	if repo.owner("lead") != "B" {
		t.Error("owner not persisted")
	}
}

func TestAssignLead_WorkloadTieGoesToFirst(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["lead"] = &domain.Contact{ID: "lead"}
	repo.addRule("wl", 1, domain.AssignWorkload, `[]`, "X", "Y")

	res := NewService(repo).AssignLead(context.Background(), "lead")
	if res == nil || res.OwnerID != "X" {
		t.Fatalf("expected X, got %+v", res)
	}
}

func TestByScore(t *testing.T) {
	three := []string{"hot", "warm", "cold"}
	cases := []struct {
		ids   []string
		score int
		want  string
	}{
		{three, 95, "hot"},
		{three, 70, "hot"},
		{three, 69, "warm"},
		{three, 40, "warm"},
		{three, 39, "cold"},
		{three, -10, "cold"},
		{[]string{"only"}, 50, "only"},
		{[]string{"a", "b", "c", "d"}, 50, "c"},
	}
	for _, tc := range cases {
		if got := ByScore(tc.ids, tc.score); got != tc.want {
			t.Errorf("ByScore(%v, %d) = %s, want %s", tc.ids, tc.score, got, tc.want)
		}
	}
}

func TestAssignLead_PriorityAndCriteria(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["ca"] = &domain.Contact{ID: "ca", State: "CA", LeadScore: 80}
	repo.contacts["tx"] = &domain.Contact{ID: "tx", State: "TX", LeadScore: 10}
	repo.addRule("west", 1, domain.AssignTerritory, `[{"field":"State","operator":"Equals","value":"ca"}]`, "WestRep", "Backup")
	repo.addRule("fallback", 5, domain.AssignScoreBased, `[]`, "Senior", "Mid", "Junior")
	svc := NewService(repo)
	ctx := context.Background()

	if res := svc.AssignLead(ctx, "ca"); res == nil || res.RuleID != "west" || res.OwnerID != "WestRep" {
		t.Fatalf("ca: %+v", res)
	}
	if res := svc.AssignLead(ctx, "tx"); res == nil || res.RuleID != "fallback" || res.OwnerID != "Junior" {
		t.Fatalf("tx: %+v", res)
	}
}

func TestAssignLead_NoMatchLeavesUnassigned(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1", Source: "Ads"}
	repo.addRule("webinar", 1, domain.AssignTerritory, `[{"field":"Source","operator":"Equals","value":"Webinar"}]`, "A")
	inactive := repo.addRule("off", 2, domain.AssignTerritory, `[]`, "B")
	inactive.IsActive = false

	if res := NewService(repo).AssignLead(context.Background(), "c1"); res != nil {
		t.Fatalf("expected nil, got %+v", res)
	}
	if repo.owner("c1") != "" {
		t.Error("contact should stay unassigned")
	}
}

func TestAssignLead_MalformedCriteriaMatchesEverything(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1"}
	repo.addRule("bad", 1, domain.AssignTerritory, `[{"field":`, "A")

	if res := NewService(repo).AssignLead(context.Background(), "c1"); res == nil || res.OwnerID != "A" {
		t.Fatalf("expected A, got %+v", res)
	}
}

func TestAssignLead_CustomFieldCriteria(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1"}
	repo.defs = []domain.CustomFieldDefinition{{ID: "d1", EntityType: domain.EntityContact, Key: "region", Name: "Sales Region"}}
	repo.values = []domain.CustomFieldValue{{DefinitionID: "d1", EntityID: "c1", Value: "EMEA"}}
	repo.addRule("emea", 1, domain.AssignTerritory, `[{"field":"sales region","operator":"Equals","value":"emea"}]`, "EU")

	if res := NewService(repo).AssignLead(context.Background(), "c1"); res == nil || res.OwnerID != "EU" {
		t.Fatalf("expected EU, got %+v", res)
	}
}

func TestAssignLead_MissingContactAndEmptyCandidates(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1"}
	repo.addRule("empty", 1, domain.AssignRoundRobin, `[]`)
	svc := NewService(repo)

	if res := svc.AssignLead(context.Background(), "ghost"); res != nil {
		t.Fatalf("missing contact: %+v", res)
	}
	if res := svc.AssignLead(context.Background(), "c1"); res != nil {
		t.Fatalf("empty candidates: %+v", res)
	}
}

func TestAssignLead_RoundRobinUnderLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := newMemRepo()
	repo.addRule("rr", 1, domain.AssignRoundRobin, `[]`, "A", "B")
	svc := NewService(repo, WithLocks(distlock.Factory{Redis: client, TTL: time.Minute}))
	svc.lockAttempts = 2
	svc.lockBackoff = time.Millisecond
	ctx := context.Background()

	repo.contacts["c1"] = &domain.Contact{ID: "c1"}
	if res := svc.AssignLead(ctx, "c1"); res == nil || res.OwnerID != "B" {
		t.Fatalf("first: %+v", res)
	}
	if mr.Exists("lock:assignment-rule:rr") {
		t.Fatal("lock not released")
	}

	// Another holder owns the cursor: the lead stays unassigned.
	if err := mr.Set("lock:assignment-rule:rr", "someone-else"); err != nil {
		t.Fatal(err)
	}
	repo.contacts["c2"] = &domain.Contact{ID: "c2"}
	if res := svc.AssignLead(ctx, "c2"); res != nil {
		t.Fatalf("expected nil while locked, got %+v", res)
	}
	if idx := *repo.rules["rr"].LastAssignedIndex; idx != 1 {
		t.Errorf("cursor moved while locked: %d", idx)
	}
}

package segment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/service/segment"
)

// memRepo is an in-memory segment repository for unit testing.
type memRepo struct {
	mu       sync.Mutex
	lists    map[string]*domain.MarketingList
	contacts []domain.Contact
	defs     []domain.CustomFieldDefinition
	values   []domain.CustomFieldValue
	members  map[string][]domain.MarketingListMember // keyed by list id

	contactLoads int
	applyCalls   int
	failApplyFor string
}

func newMemRepo() *memRepo {
	return &memRepo{
		lists:   make(map[string]*domain.MarketingList),
		members: make(map[string][]domain.MarketingListMember),
	}
}

func (m *memRepo) ActiveDynamicLists(_ context.Context) ([]domain.MarketingList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MarketingList
	for _, l := range m.lists {
		if l.Type == domain.ListDynamic && l.Status == domain.ListActive {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListContacts(_ context.Context) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contactLoads++
	var out []domain.Contact
	for _, c := range m.contacts {
		if !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) CustomFieldDefinitions(_ context.Context, entityType string) ([]domain.CustomFieldDefinition, error) {
	var out []domain.CustomFieldDefinition
	for _, d := range m.defs {
		if d.EntityType == entityType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) CustomFieldValues(_ context.Context, _ string, _ []string) ([]domain.CustomFieldValue, error) {
	return m.values, nil
}

func (m *memRepo) ListMembers(_ context.Context, listID string) ([]domain.MarketingListMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MarketingListMember(nil), m.members[listID]...), nil
}

func (m *memRepo) ApplyMembershipDiff(_ context.Context, listID string, add []domain.MarketingListMember, removeIDs []string, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if listID == m.failApplyFor {
		return errors.New("write failed")
	}
	remove := make(map[string]bool, len(removeIDs))
	for _, id := range removeIDs {
		remove[id] = true
	}
	var kept []domain.MarketingListMember
	for _, mem := range m.members[listID] {
		if !remove[mem.ID] {
			kept = append(kept, mem)
		}
	}
	m.members[listID] = append(kept, add...)
	l := m.lists[listID]
	l.MemberCount += len(add) - len(removeIDs)
	ts := syncedAt
	l.LastSyncedAt = &ts
	return nil
}

func (m *memRepo) addList(id string, criteria string) {
	m.lists[id] = &domain.MarketingList{
		ID: id, Name: id, Type: domain.ListDynamic, Status: domain.ListActive,
		DynamicCriteria: json.RawMessage(criteria),
	}
}

func (m *memRepo) memberIDs(listID string) []string {
	var ids []string
	for _, mem := range m.members[listID] {
		ids = append(ids, mem.ContactID)
	}
	sort.Strings(ids)
	return ids
}

func seedContacts(m *memRepo) {
	m.contacts = []domain.Contact{
		{ID: "c1", Email: "a@acme.com", State: "CA", Source: "Webinar"},
		{ID: "c2", Email: "b@acme.com", State: "ca", Source: "Ads"},
		{ID: "c3", Email: "c@other.com", State: "NY", Source: "Webinar"},
		{ID: "c4", Email: "", State: "CA"},
		{ID: "c5", Email: "d@acme.com", State: "CA", IsDeleted: true},
	}
}

func TestProcessDynamicLists_AddsMatchingContacts(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("l1", `[{"field":"State","operator":"Equals","value":"CA"}]`)
	svc := segment.NewService(repo)

	res := svc.ProcessDynamicLists(context.Background())

	if res.Added != 2 || res.Removed != 0 || res.ListsChanged != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	got := repo.memberIDs("l1")
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("members = %v, want [c1 c2]", got)
	}
	for _, mem := range repo.members["l1"] {
		if mem.Source != domain.MemberSourceDynamicRule || mem.Status != domain.MemberSubscribed {
			t.Errorf("member %s has source=%q status=%q", mem.ContactID, mem.Source, mem.Status)
		}
	}
	if repo.lists["l1"].MemberCount != 2 {
		t.Errorf("member count = %d", repo.lists["l1"].MemberCount)
	}
	if repo.lists["l1"].LastSyncedAt == nil {
		t.Error("expected lastSyncedAt to be set")
	}
}

func TestProcessDynamicLists_Idempotent(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("l1", `[{"field":"Source","operator":"Equals","value":"webinar"}]`)
	svc := segment.NewService(repo)
	ctx := context.Background()

	svc.ProcessDynamicLists(ctx)
	synced := *repo.lists["l1"].LastSyncedAt
	calls := repo.applyCalls

	res := svc.ProcessDynamicLists(ctx)
	if res.Added != 0 || res.Removed != 0 || res.ListsChanged != 0 {
		t.Fatalf("second run changed membership: %+v", res)
	}
	if repo.applyCalls != calls {
		t.Error("second run should not write")
	}
	if !repo.lists["l1"].LastSyncedAt.Equal(synced) {
		t.Error("second run touched lastSyncedAt")
	}
}

func TestProcessDynamicLists_RemovesNoLongerMatching(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("l1", `[{"field":"Email","operator":"EndsWith","value":"@acme.com"}]`)
	repo.lists["l1"].MemberCount = 2
	repo.members["l1"] = []domain.MarketingListMember{
		{ID: "m1", ListID: "l1", ContactID: "c1"},
		{ID: "m3", ListID: "l1", ContactID: "c3"},
	}
	svc := segment.NewService(repo)

	res := svc.ProcessDynamicLists(context.Background())
	if res.Added != 1 || res.Removed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	got := repo.memberIDs("l1")
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Fatalf("members = %v, want [c1 c2]", got)
	}
	if repo.lists["l1"].MemberCount != 2 {
		t.Errorf("member count = %d, want 2", repo.lists["l1"].MemberCount)
	}
}

func TestProcessDynamicLists_EmptyCriteriaMatchesEveryoneWithEmail(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("l1", `[]`)
	svc := segment.NewService(repo)

	svc.ProcessDynamicLists(context.Background())
	if got := repo.memberIDs("l1"); len(got) != 3 {
		t.Fatalf("members = %v, want c1..c3", got)
	}
}

func TestProcessDynamicLists_CustomFieldCriteria(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.defs = []domain.CustomFieldDefinition{{ID: "d1", EntityType: domain.EntityContact, Key: "industry", Name: "Industry"}}
	repo.values = []domain.CustomFieldValue{
		{DefinitionID: "d1", EntityID: "c2", Value: "Healthcare"},
		{DefinitionID: "d1", EntityID: "c3", Value: "Retail"},
	}
	repo.addList("l1", `[{"field":"Industry","operator":"Equals","value":"healthcare"}]`)
	svc := segment.NewService(repo)

	svc.ProcessDynamicLists(context.Background())
	if got := repo.memberIDs("l1"); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("members = %v, want [c2]", got)
	}
}

func TestProcessDynamicLists_FailureIsolatedPerList(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("a-bad", `{not json`)
	repo.addList("b-failing", `[{"field":"State","operator":"Equals","value":"NY"}]`)
	repo.addList("c-good", `[{"field":"State","operator":"Equals","value":"NY"}]`)
	repo.failApplyFor = "b-failing"
	svc := segment.NewService(repo)

	res := svc.ProcessDynamicLists(context.Background())

	if res.ListsProcessed != 3 || res.ListsFailed != 2 || res.ListsChanged != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := repo.memberIDs("c-good"); len(got) != 1 || got[0] != "c3" {
		t.Fatalf("good list members = %v", got)
	}
	if repo.lists["a-bad"].LastSyncedAt != nil {
		t.Error("malformed list must be left untouched")
	}
}

func TestProcessDynamicLists_SnapshotLoadedOncePerPoll(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("l1", `[]`)
	repo.addList("l2", `[]`)
	repo.addList("l3", `[]`)
	svc := segment.NewService(repo)

	svc.ProcessDynamicLists(context.Background())
	if repo.contactLoads != 1 {
		t.Fatalf("contacts loaded %d times, want 1", repo.contactLoads)
	}
}

func TestProcessDynamicLists_PausedAndStaticListsIgnored(t *testing.T) {
	repo := newMemRepo()
	seedContacts(repo)
	repo.addList("paused", `[]`)
	repo.lists["paused"].Status = domain.ListPaused
	repo.lists["static"] = &domain.MarketingList{ID: "static", Type: domain.ListStatic, Status: domain.ListActive}
	svc := segment.NewService(repo)

	res := svc.ProcessDynamicLists(context.Background())
	if res.ListsProcessed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if repo.contactLoads != 0 {
		t.Error("snapshot should not load when there is nothing to reconcile")
	}
}

package check

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"clientpin/crm"
	"clientpin/directory"
)

type fakeDirectory struct {
	clients map[string]directory.ClientRecord
	agents  map[string]directory.AgentRecord
}

func (f *fakeDirectory) FindClientByPhone(ctx context.Context, phone string) (directory.ClientRecord, error) {
	rec, ok := f.clients[phone]
	if !ok {
		return directory.ClientRecord{}, directory.ErrNotFound
	}
	return rec, nil
}

func (f *fakeDirectory) GetAgent(ctx context.Context, agentID string) (directory.AgentRecord, error) {
	rec, ok := f.agents[agentID]
	if !ok {
		return directory.AgentRecord{}, directory.ErrNotFound
	}
	return rec, nil
}

type fakeCRM struct {
	contacts    []crm.Contact
	contactsErr error
	statuses    map[int64]crm.PipelineStatus
	statusErr   error
	leads       map[int64]crm.Lead
	leadsErr    error
}

func (f *fakeCRM) FindContactsByPhone(ctx context.Context, phone string) ([]crm.Contact, error) {
	if f.contactsErr != nil {
		return nil, f.contactsErr
	}
	return f.contacts, nil
}

func (f *fakeCRM) GetContactPipelineStatus(ctx context.Context, contactID int64) (crm.PipelineStatus, error) {
	if f.statusErr != nil {
		return crm.PipelineStatus{}, f.statusErr
	}
	ps, ok := f.statuses[contactID]
	if !ok {
		return crm.PipelineStatus{}, crm.ErrNotFound
	}
	return ps, nil
}

func (f *fakeCRM) FetchLeads(ctx context.Context, leadIDs []int64) ([]crm.Lead, error) {
	if f.leadsErr != nil {
		return nil, f.leadsErr
	}
	out := make([]crm.Lead, 0, len(leadIDs))
	for _, id := range leadIDs {
		if l, ok := f.leads[id]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func newTestResolver(dir *fakeDirectory, contacts *fakeCRM) *Resolver {
	if dir == nil {
		dir = &fakeDirectory{}
	}
	if contacts == nil {
		contacts = &fakeCRM{}
	}
	return NewResolver(dir, contacts, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func TestResolve_InvalidPhone(t *testing.T) {
	r := newTestResolver(nil, nil)

	_, err := r.Resolve(context.Background(), ContactInput{Phone: "not-a-phone"}, Actor{Kind: ActorAgent, ID: "a1"})
	if !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("expected ErrInvalidContact, got %v", err)
	}
}

func TestResolve_UnknownEverywhere(t *testing.T) {
	r := newTestResolver(nil, nil)

	_, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestResolve_LookupFailurePropagates(t *testing.T) {
	r := newTestResolver(nil, &fakeCRM{contactsErr: crm.ErrLookupFailed})

	_, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if !errors.Is(err, crm.ErrLookupFailed) {
		t.Fatalf("expected crm.ErrLookupFailed, got %v", err)
	}
}

func TestResolve_CRMOnlyClient(t *testing.T) {
	contacts := &fakeCRM{
		contacts: []crm.Contact{{ID: 10, CreatedAt: time.Unix(1700000000, 0)}},
		statuses: map[int64]crm.PipelineStatus{
			10: {PipelineID: 3, StatusID: 7, CityID: 77},
		},
	}
	r := newTestResolver(nil, contacts)

	resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+7 916 000-00-01"}, Actor{Kind: ActorAgent, ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ClientID != nil {
		t.Fatalf("expected nil ClientID for CRM-only client, got %q", *resolved.ClientID)
	}
	if resolved.ClientPhone != "+79160000001" {
		t.Fatalf("expected normalized phone, got %q", resolved.ClientPhone)
	}
	if resolved.ExternalContactID == nil || *resolved.ExternalContactID != 10 {
		t.Fatalf("expected external contact 10, got %v", resolved.ExternalContactID)
	}
	f := resolved.Facts
	if f.CityID != 77 || f.PipelineID != 3 || f.StatusID != 7 {
		t.Fatalf("unexpected scope facts: %+v", f)
	}
	if f.HasAnyAgent || f.AssignedToRequestingAgent || f.AssignedToOtherAgent || f.AgencyStatusAssigned {
		t.Fatalf("expected all predicate facts false, got %+v", f)
	}
}

func TestResolve_NewestContactWins(t *testing.T) {
	contacts := &fakeCRM{
		contacts: []crm.Contact{
			{ID: 10, CreatedAt: time.Unix(1700000000, 0)},
			{ID: 12, CreatedAt: time.Unix(1700009999, 0)},
			{ID: 11, CreatedAt: time.Unix(1700005000, 0)},
		},
		statuses: map[int64]crm.PipelineStatus{
			12: {CityID: 78},
		},
	}
	r := newTestResolver(nil, contacts)

	resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ExternalContactID == nil || *resolved.ExternalContactID != 12 {
		t.Fatalf("expected newest contact 12, got %v", resolved.ExternalContactID)
	}
	if resolved.Facts.CityID != 78 {
		t.Fatalf("expected city from newest contact, got %d", resolved.Facts.CityID)
	}
}

func TestResolve_ContactWithoutLead(t *testing.T) {
	contacts := &fakeCRM{
		contacts: []crm.Contact{{ID: 10, CreatedAt: time.Unix(1700000000, 0)}},
	}
	r := newTestResolver(nil, contacts)

	resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f := resolved.Facts; f.CityID != 0 || f.PipelineID != 0 || f.StatusID != 0 {
		t.Fatalf("expected zero scope facts for contact without lead, got %+v", f)
	}
}

func TestResolve_LeadFallback(t *testing.T) {
	contacts := &fakeCRM{
		contacts: []crm.Contact{{ID: 10, CreatedAt: time.Unix(1700000000, 0), LeadIDs: []int64{40, 42}}},
		leads: map[int64]crm.Lead{
			40: {ID: 40, ContactID: 10, PipelineID: 1, StatusID: 5, CityID: 70},
			42: {ID: 42, ContactID: 10, PipelineID: 2, StatusID: 6, CityID: 71},
		},
	}
	r := newTestResolver(nil, contacts)

	resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No pipeline-status endpoint answer for contact 10, so scope comes from
	// the most recent embedded lead.
	f := resolved.Facts
	if f.CityID != 71 || f.PipelineID != 2 || f.StatusID != 6 {
		t.Fatalf("expected scope facts from lead 42, got %+v", f)
	}
}

func TestResolve_LeadFallbackFailurePropagates(t *testing.T) {
	contacts := &fakeCRM{
		contacts: []crm.Contact{{ID: 10, CreatedAt: time.Unix(1700000000, 0), LeadIDs: []int64{40}}},
		leadsErr: crm.ErrLookupFailed,
	}
	r := newTestResolver(nil, contacts)

	_, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if !errors.Is(err, crm.ErrLookupFailed) {
		t.Fatalf("expected crm.ErrLookupFailed, got %v", err)
	}
}

func TestResolve_AssignmentFacts(t *testing.T) {
	agency := "agency-1"
	otherAgency := "agency-2"
	assigned := directory.AgencyStatusAssigned

	cases := []struct {
		name   string
		client directory.ClientRecord
		actor  Actor
		want   func(t *testing.T, f ResolvedFacts)
	}{
		{
			name: "assigned to requesting agent",
			client: directory.ClientRecord{
				ID: "c1", Phone: "+79160000001",
				AgentID: strPtr("a1"), AgencyID: &agency, AgencyStatus: &assigned,
			},
			actor: Actor{Kind: ActorAgent, ID: "a1", AgencyID: &agency},
			want: func(t *testing.T, r ResolvedFacts) {
				f := r.Facts
				if !f.HasAnyAgent || !f.AssignedToRequestingAgent || f.AssignedToOtherAgent {
					t.Fatalf("unexpected facts: %+v", f)
				}
				if !f.AgencyStatusAssigned {
					t.Fatalf("expected agency assigned, got %+v", f)
				}
				if r.ClientID == nil || *r.ClientID != "c1" {
					t.Fatalf("expected client c1, got %v", r.ClientID)
				}
			},
		},
		{
			name: "assigned to other agent",
			client: directory.ClientRecord{
				ID: "c1", Phone: "+79160000001",
				AgentID: strPtr("a2"), AgencyID: &otherAgency,
			},
			actor: Actor{Kind: ActorAgent, ID: "a1", AgencyID: &agency},
			want: func(t *testing.T, r ResolvedFacts) {
				f := r.Facts
				if !f.HasAnyAgent || f.AssignedToRequestingAgent || !f.AssignedToOtherAgent {
					t.Fatalf("unexpected facts: %+v", f)
				}
				if f.AgencyStatusAssigned {
					t.Fatalf("expected agency not assigned across agencies, got %+v", f)
				}
			},
		},
		{
			name: "free client",
			client: directory.ClientRecord{
				ID: "c1", Phone: "+79160000001",
			},
			actor: Actor{Kind: ActorAgent, ID: "a1", AgencyID: &agency},
			want: func(t *testing.T, r ResolvedFacts) {
				f := r.Facts
				if f.HasAnyAgent || f.AssignedToRequestingAgent || f.AssignedToOtherAgent {
					t.Fatalf("expected free client facts, got %+v", f)
				}
			},
		},
		{
			name: "same agency without assigned status",
			client: directory.ClientRecord{
				ID: "c1", Phone: "+79160000001",
				AgentID: strPtr("a2"), AgencyID: &agency, AgencyStatus: strPtr("reserved"),
			},
			actor: Actor{Kind: ActorAgent, ID: "a1", AgencyID: &agency},
			want: func(t *testing.T, r ResolvedFacts) {
				if r.Facts.AgencyStatusAssigned {
					t.Fatalf("reserved status must not count as assigned: %+v", r.Facts)
				}
			},
		},
		{
			name: "representative sees other-agent assignment",
			client: directory.ClientRecord{
				ID: "c1", Phone: "+79160000001",
				AgentID: strPtr("a1"),
			},
			actor: Actor{Kind: ActorRepresentative, ID: "rep-1", AgencyID: &agency},
			want: func(t *testing.T, r ResolvedFacts) {
				f := r.Facts
				if !f.HasAnyAgent || f.AssignedToRequestingAgent || !f.AssignedToOtherAgent {
					t.Fatalf("unexpected facts for representative: %+v", f)
				}
				if r.ActorAgentID != nil {
					t.Fatalf("representative must not carry an agent id, got %v", r.ActorAgentID)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := &fakeDirectory{clients: map[string]directory.ClientRecord{"+79160000001": tc.client}}
			r := newTestResolver(dir, nil)

			resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, tc.actor)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.want(t, resolved)
		})
	}
}

func TestResolve_AgentAgencyFallback(t *testing.T) {
	agency := "agency-1"
	assigned := directory.AgencyStatusAssigned
	dir := &fakeDirectory{
		clients: map[string]directory.ClientRecord{
			"+79160000001": {
				ID: "c1", Phone: "+79160000001",
				AgentID: strPtr("a2"), AgencyID: &agency, AgencyStatus: &assigned,
			},
		},
		agents: map[string]directory.AgentRecord{
			"a1": {ID: "a1", AgencyID: &agency},
		},
	}
	r := newTestResolver(dir, nil)

	// No explicit agency claim: the directory linkage supplies it.
	resolved, err := r.Resolve(context.Background(), ContactInput{Phone: "+79160000001"}, Actor{Kind: ActorAgent, ID: "a1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.ActorAgencyID == nil || *resolved.ActorAgencyID != agency {
		t.Fatalf("expected agency from directory fallback, got %v", resolved.ActorAgencyID)
	}
	if !resolved.Facts.AgencyStatusAssigned {
		t.Fatalf("expected agency assigned via fallback, got %+v", resolved.Facts)
	}
}

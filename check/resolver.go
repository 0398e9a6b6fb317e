package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"clientpin/crm"
	"clientpin/directory"
	"clientpin/term"
)

// ContactLookup is the slice of the CRM adapter the resolver consumes.
type ContactLookup interface {
	FindContactsByPhone(ctx context.Context, phone string) ([]crm.Contact, error)
	GetContactPipelineStatus(ctx context.Context, contactID int64) (crm.PipelineStatus, error)
	FetchLeads(ctx context.Context, leadIDs []int64) ([]crm.Lead, error)
}

// Directory is the internal client/agent lookup the resolver consumes.
type Directory interface {
	FindClientByPhone(ctx context.Context, phone string) (directory.ClientRecord, error)
	GetAgent(ctx context.Context, agentID string) (directory.AgentRecord, error)
}

// Resolver turns raw contact data plus the requesting actor into the fact
// set the rule matcher tests.
type Resolver struct {
	directory Directory
	contacts  ContactLookup
	log       zerolog.Logger
}

func NewResolver(dir Directory, contacts ContactLookup, log zerolog.Logger) *Resolver {
	return &Resolver{directory: dir, contacts: contacts, log: log}
}

// Resolve computes the predicate facts for one evaluation.
//
// A client may exist purely in the external CRM, so ErrClientNotFound is
// raised only when both the internal directory and the CRM come up empty.
// CRM failures propagate as crm.ErrLookupFailed; they are never defaulted to
// "no match". When several CRM contacts share the phone, the most recently
// created one wins. That recency heuristic is carried over from the legacy
// platform without a stated correctness argument; it disambiguates, it does
// not guarantee the right contact.
func (r *Resolver) Resolve(ctx context.Context, contact ContactInput, actor Actor) (ResolvedFacts, error) {
	phone, err := NormalizePhone(contact.Phone)
	if err != nil {
		return ResolvedFacts{}, err
	}

	var (
		client   directory.ClientRecord
		internal bool
	)
	switch client, err = r.directory.FindClientByPhone(ctx, phone); {
	case err == nil:
		internal = true
	case errors.Is(err, directory.ErrNotFound):
		// CRM may still know the client.
	default:
		return ResolvedFacts{}, fmt.Errorf("check: internal client lookup: %w", err)
	}

	contacts, err := r.contacts.FindContactsByPhone(ctx, phone)
	if err != nil {
		return ResolvedFacts{}, err
	}
	if !internal && len(contacts) == 0 {
		return ResolvedFacts{}, ErrClientNotFound
	}

	facts := term.Facts{}
	resolved := ResolvedFacts{ClientPhone: phone}

	if matched := newestContact(contacts); matched != nil {
		id := matched.ID
		resolved.ExternalContactID = &id

		ps, err := r.contacts.GetContactPipelineStatus(ctx, id)
		switch {
		case err == nil:
			facts.CityID = ps.CityID
			facts.PipelineID = ps.PipelineID
			facts.StatusID = ps.StatusID
		case errors.Is(err, crm.ErrNotFound):
			// Imported contacts lack a computed pipeline position; fall back
			// to the leads embedded on the contact card.
			lead, lerr := r.latestLead(ctx, matched.LeadIDs)
			if lerr != nil {
				return ResolvedFacts{}, lerr
			}
			if lead != nil {
				facts.CityID = lead.CityID
				facts.PipelineID = lead.PipelineID
				facts.StatusID = lead.StatusID
			} else {
				// Contact without any lead: scope facts stay zero and only
				// unrestricted terms can match on those dimensions.
				r.log.Debug().Int64("contact_id", id).Msg("crm contact has no active lead")
			}
		default:
			return ResolvedFacts{}, err
		}
	}

	actorAgency, err := r.actorAgency(ctx, actor)
	if err != nil {
		return ResolvedFacts{}, err
	}
	resolved.ActorAgencyID = actorAgency
	if actor.Kind == ActorAgent {
		agentID := actor.ID
		resolved.ActorAgentID = &agentID
	}

	if internal {
		clientID := client.ID
		resolved.ClientID = &clientID

		facts.HasAnyAgent = client.AgentID != nil
		if facts.HasAnyAgent {
			facts.AssignedToRequestingAgent = actor.Kind == ActorAgent && *client.AgentID == actor.ID
			facts.AssignedToOtherAgent = !facts.AssignedToRequestingAgent
		}
		facts.AgencyStatusAssigned = agencyAssigned(client, actorAgency)
	}

	resolved.Facts = facts
	return resolved, nil
}

// actorAgency resolves the requesting actor's agency; for agents without an
// explicit agency claim it falls back to the directory linkage.
func (r *Resolver) actorAgency(ctx context.Context, actor Actor) (*string, error) {
	if actor.AgencyID != nil {
		return actor.AgencyID, nil
	}
	if actor.Kind != ActorAgent {
		return nil, nil
	}

	agent, err := r.directory.GetAgent(ctx, actor.ID)
	switch {
	case err == nil:
		return agent.AgencyID, nil
	case errors.Is(err, directory.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("check: resolve actor agency: %w", err)
	}
}

// latestLead batch-loads the contact's embedded leads and returns the most
// recent one by id, or nil when the contact has none.
func (r *Resolver) latestLead(ctx context.Context, leadIDs []int64) (*crm.Lead, error) {
	if len(leadIDs) == 0 {
		return nil, nil
	}
	leads, err := r.contacts.FetchLeads(ctx, leadIDs)
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	// FetchLeads sorts ascending by id.
	last := leads[len(leads)-1]
	return &last, nil
}

func agencyAssigned(client directory.ClientRecord, actorAgency *string) bool {
	if client.AgencyID == nil || actorAgency == nil {
		return false
	}
	if *client.AgencyID != *actorAgency {
		return false
	}
	return client.AgencyStatus != nil && *client.AgencyStatus == directory.AgencyStatusAssigned
}

func newestContact(contacts []crm.Contact) *crm.Contact {
	var newest *crm.Contact
	for i := range contacts {
		c := &contacts[i]
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return newest
}

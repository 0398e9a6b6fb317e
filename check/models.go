package check

import (
	"time"

	"clientpin/term"
)

// ActorKind discriminates who is attempting to claim a client.
type ActorKind string

const (
	ActorAgent          ActorKind = "agent"
	ActorRepresentative ActorKind = "representative"
	ActorAdmin          ActorKind = "admin"
)

// Actor is the authenticated party requesting an evaluation. For agents the
// ID is the agent's user id; for representatives it identifies the
// representative and AgencyID carries their agency.
type Actor struct {
	Kind     ActorKind
	ID       string
	AgencyID *string
}

// ContactInput is the raw client contact data supplied by the caller.
type ContactInput struct {
	Phone    string
	FullName *string
	Email    *string
}

// Check is the live evaluation record. At most one non-fixed check exists
// per client; re-evaluation overwrites it in place. A fixed check is frozen:
// automatic re-evaluation may no longer touch it.
type Check struct {
	ID               string
	ClientID         *string
	ResultStatus     string
	MatchedContactID *int64
	Fixed            bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HistoryEntry is an append-only snapshot of one evaluation: what the rules
// produced, which term won, and the facts that were computed. History rows
// are never mutated and survive independently of the live check.
type HistoryEntry struct {
	ID               string
	CheckID          string
	ClientID         *string
	ClientPhone      string
	AgentID          *string
	AgencyID         *string
	ResultStatus     string
	MatchedTermID    *string
	MatchedContactID *int64
	Facts            term.Facts
	CreatedAt        time.Time
}

// CheckResult is the caller-facing outcome of evaluateCheck.
type CheckResult struct {
	CheckID         string
	Status          string
	StatusTitle     string
	ButtonSlug      *string
	Fixed           bool
	DisputeEligible bool
}

// ResolvedFacts bundles the matcher input with the identifiers the recorder
// needs to persist the evaluation.
type ResolvedFacts struct {
	Facts             term.Facts
	ClientID          *string
	ClientPhone       string
	ActorAgentID      *string
	ActorAgencyID     *string
	ExternalContactID *int64
}

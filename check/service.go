package check

import (
	"context"

	"github.com/rs/zerolog"

	"clientpin/term"
)

// FactResolver produces the matcher input for an evaluation.
type FactResolver interface {
	Resolve(ctx context.Context, contact ContactInput, actor Actor) (ResolvedFacts, error)
}

// RuleSource is the slice of the term store the service consumes.
type RuleSource interface {
	Terms(ctx context.Context) ([]term.Term, error)
	StatusBySlug(ctx context.Context, slug string) (term.UniqueStatus, error)
}

// CheckRecorder persists matcher outcomes.
type CheckRecorder interface {
	RecordCheck(ctx context.Context, params RecordParams) (Check, error)
}

// disputeEligible lists result statuses a caller may contest. The error
// status is included: "no rule matched" is exactly the needs-admin-review
// case.
var disputeEligible = map[string]bool{
	term.StatusCanDispute: true,
	term.StatusError:      true,
}

// Service runs the full evaluation pipeline: resolve facts, match rules,
// record the outcome.
type Service struct {
	resolver FactResolver
	rules    RuleSource
	recorder CheckRecorder
	log      zerolog.Logger
}

func NewService(resolver FactResolver, rules RuleSource, recorder CheckRecorder, log zerolog.Logger) *Service {
	return &Service{
		resolver: resolver,
		rules:    rules,
		recorder: recorder,
		log:      log,
	}
}

// EvaluateCheck decides the ownership status of the client identified by the
// contact data, as seen by the requesting actor, and persists the decision.
//
// The returned result reflects the live check: when an earlier dispute froze
// the record, the frozen status wins over what this evaluation produced and
// the fresh outcome lands only in history.
func (s *Service) EvaluateCheck(ctx context.Context, contact ContactInput, actor Actor) (CheckResult, error) {
	resolved, err := s.resolver.Resolve(ctx, contact, actor)
	if err != nil {
		return CheckResult{}, err
	}

	terms, err := s.rules.Terms(ctx)
	if err != nil {
		return CheckResult{}, err
	}

	outcome := term.Match(terms, resolved.Facts)
	s.log.Debug().
		Str("status", outcome.Status).
		Str("phone", resolved.ClientPhone).
		Msg("rule matcher outcome")

	rec, err := s.recorder.RecordCheck(ctx, RecordParams{
		ClientID:         resolved.ClientID,
		ClientPhone:      resolved.ClientPhone,
		AgentID:          resolved.ActorAgentID,
		AgencyID:         resolved.ActorAgencyID,
		Outcome:          outcome,
		Facts:            resolved.Facts,
		MatchedContactID: resolved.ExternalContactID,
	})
	if err != nil {
		return CheckResult{}, err
	}

	status, err := s.rules.StatusBySlug(ctx, rec.ResultStatus)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		CheckID:         rec.ID,
		Status:          status.Slug,
		StatusTitle:     status.Title,
		ButtonSlug:      status.ButtonSlug,
		Fixed:           rec.Fixed,
		DisputeEligible: disputeEligible[status.Slug] && !rec.Fixed,
	}, nil
}

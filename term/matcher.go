package term

// Outcome is the matcher verdict: the winning term (nil when no rule
// matched) and the resulting unique status slug.
type Outcome struct {
	TermID *string
	Status string
}

// Match selects exactly one unique status for the resolved facts.
//
// Terms pass when every scope set is empty or contains the corresponding
// fact, and every non-skip predicate equals the computed fact. Among passing
// terms the lowest priority value wins; ties fall back to lexicographic id so
// the result stays deterministic even if the store violates its unique
// priority invariant. Absence of any matching term yields the error status:
// an unmatched input is an anomaly to surface, never a silent "unique".
func Match(terms []Term, facts Facts) Outcome {
	var best *Term
	for i := range terms {
		t := &terms[i]
		if !t.scopeMatches(facts) {
			continue
		}
		if !t.predicatesMatch(facts) {
			continue
		}
		if best == nil || t.Priority < best.Priority || (t.Priority == best.Priority && t.ID < best.ID) {
			best = t
		}
	}

	if best == nil {
		return Outcome{Status: StatusError}
	}
	return Outcome{TermID: &best.ID, Status: best.ResultStatus}
}

func (t *Term) scopeMatches(facts Facts) bool {
	return memberOrEmpty(t.Cities, facts.CityID) &&
		memberOrEmpty(t.Pipelines, facts.PipelineID) &&
		memberOrEmpty(t.Statuses, facts.StatusID)
}

func (t *Term) predicatesMatch(facts Facts) bool {
	return t.HasAnyAgent.matches(facts.HasAnyAgent) &&
		t.AssignedToRequestingAgent.matches(facts.AssignedToRequestingAgent) &&
		t.AssignedToOtherAgent.matches(facts.AssignedToOtherAgent) &&
		t.AgencyStatusAssigned.matches(facts.AgencyStatusAssigned)
}

func memberOrEmpty(set []int64, id int64) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

// PriorityConflict names two terms that share a priority while their scopes
// overlap, making the tie-break undefined for some input.
type PriorityConflict struct {
	TermA string
	TermB string
}

// ValidatePriorities reports duplicate priorities within overlapping scopes.
// Unique priorities are a construction-time invariant owned by admin tooling;
// this helper lets that tooling reject a bad term set before it is stored.
func ValidatePriorities(terms []Term) []PriorityConflict {
	var conflicts []PriorityConflict
	for i := range terms {
		for j := i + 1; j < len(terms); j++ {
			a, b := &terms[i], &terms[j]
			if a.Priority != b.Priority {
				continue
			}
			if setsOverlap(a.Cities, b.Cities) && setsOverlap(a.Pipelines, b.Pipelines) && setsOverlap(a.Statuses, b.Statuses) {
				conflicts = append(conflicts, PriorityConflict{TermA: a.ID, TermB: b.ID})
			}
		}
	}
	return conflicts
}

func setsOverlap(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, v := range a {
		for _, w := range b {
			if v == w {
				return true
			}
		}
	}
	return false
}

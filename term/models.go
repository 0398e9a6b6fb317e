package term

// TriState is a three-valued predicate condition: a term either requires the
// fact to hold (yes), requires it to be absent (no), or ignores it (skip).
type TriState string

const (
	TriSkip TriState = "skip"
	TriYes  TriState = "yes"
	TriNo   TriState = "no"
)

// matches reports whether the condition accepts a computed fact value.
func (t TriState) matches(fact bool) bool {
	switch t {
	case TriYes:
		return fact
	case TriNo:
		return !fact
	default:
		return true
	}
}

// Known unique status slugs. The slug is the stable identifier; rows in
// unique_statuses carry the presentation attributes.
const (
	StatusUnique          = "unique"
	StatusNotUnique       = "not_unique"
	StatusCanDispute      = "can_dispute"
	StatusPartiallyPinned = "partially_pinned"
	StatusPinned          = "pinned"
	StatusError           = "error"
)

// UniqueStatus mirrors the unique_statuses reference table.
type UniqueStatus struct {
	ID         string
	Slug       string
	Title      string
	Icon       string
	ButtonSlug *string
}

// Term is a single ownership rule. Scope sets are membership tests against
// the resolved facts; an empty set leaves that dimension unrestricted. A term
// with all predicates skip and empty scope sets is a legal catch-all default.
type Term struct {
	ID        string
	Priority  int
	Cities    []int64
	Pipelines []int64
	Statuses  []int64

	HasAnyAgent               TriState
	AssignedToRequestingAgent TriState
	AssignedToOtherAgent      TriState
	AgencyStatusAssigned      TriState

	// ResultStatus is the unique status slug assigned when this term wins.
	ResultStatus string
	Comment      *string
}

// Facts is the matcher input. Predicate facts are concrete booleans; only
// term conditions are tri-state. The JSON form is persisted in check history
// snapshots.
type Facts struct {
	CityID     int64 `json:"city_id"`
	PipelineID int64 `json:"pipeline_id"`
	StatusID   int64 `json:"status_id"`

	HasAnyAgent               bool `json:"has_any_agent"`
	AssignedToRequestingAgent bool `json:"assigned_to_requesting_agent"`
	AssignedToOtherAgent      bool `json:"assigned_to_other_agent"`
	AgencyStatusAssigned      bool `json:"agency_status_assigned"`
}

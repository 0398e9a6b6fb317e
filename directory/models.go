package directory

// AgencyStatusAssigned is the platform-defined agency status under which an
// agency's claim on a client counts as assigned.
const AgencyStatusAssigned = "assigned"

// ClientRecord is the internal view of a prospective client: who, if anyone,
// currently holds them.
type ClientRecord struct {
	ID           string
	Phone        string
	FullName     *string
	Email        *string
	AgentID      *string
	AgencyID     *string
	AgencyStatus *string
}

// AgentRecord links an agent to their agency.
type AgentRecord struct {
	ID       string
	AgencyID *string
}

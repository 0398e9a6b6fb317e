package dispute

import (
	"errors"
	"time"
)

// State tracks the dispute lifecycle. The only legal path is
// open -> escalated -> resolved; resolved is terminal.
type State string

const (
	StateOpen      State = "open"
	StateEscalated State = "escalated"
	StateResolved  State = "resolved"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrAlreadyOpen signals an active (open or escalated) dispute already
	// exists for the check. At most one active dispute per check.
	ErrAlreadyOpen = errors.New("dispute: already open for check")
	// ErrInvalidTransition signals the requested transition is not legal from
	// the dispute's current state.
	ErrInvalidTransition = errors.New("dispute: invalid state transition")
)

// Record mirrors the disputes table.
type Record struct {
	ID             string
	CheckID        string
	RaisedBy       string
	Comment        string
	State          State
	Accepted       *bool
	ResolvedStatus *string
	ResolvedBy     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

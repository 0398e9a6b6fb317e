package check

import "errors"

var (
	// ErrInvalidContact rejects a malformed phone before any lookup runs.
	ErrInvalidContact = errors.New("check: invalid contact phone")
	// ErrClientNotFound signals neither an internal client record nor a CRM
	// contact exists for the phone.
	ErrClientNotFound = errors.New("check: client not found")
	// ErrCheckNotFound signals no check row exists for the identifier.
	ErrCheckNotFound = errors.New("check: not found")
)

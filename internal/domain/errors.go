package domain

import "errors"

var (
	// ErrUnknownState is returned when an OAuth2 state parameter does not
	// resolve to an open authorization start. Treated as forbidden at the
	// boundary: it covers forged, replayed, and already-redeemed states.
	ErrUnknownState = errors.New("unknown authorization state")

	// ErrDuplicateUser is returned when creating a user whose ID already exists.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrBrokenReference means an authorization start points at a user row
	// that no longer exists. This is an internal consistency failure, never
	// ordinary absence.
	ErrBrokenReference = errors.New("authorization start references missing user")
)

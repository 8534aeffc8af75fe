package coordinator

import "errors"

var (
	// ErrNotInCall is returned by call-scoped operations when no session is
	// active.
	ErrNotInCall = errors.New("coordinator: not in a call")

	// ErrAlreadyInCall is returned by JoinRoom while a session is active.
	ErrAlreadyInCall = errors.New("coordinator: already in a call")

	// ErrMediaAcquisition wraps a media capture failure. The join is aborted
	// before any relay connection is made.
	ErrMediaAcquisition = errors.New("coordinator: media acquisition failed")
)

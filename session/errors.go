package session

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation needs a session and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshToken is returned by Refresh when the session has no refresh token.
	ErrNoRefreshToken = errors.New("session has no refresh token")
	// ErrSessionExpired is returned by Restore when the persisted token has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionChanged is returned when the session was replaced or cleared while a
	// backend call was in flight. The call's result is discarded.
	ErrSessionChanged = errors.New("session changed during request")
	// ErrClosed is returned by mutating methods after Close.
	ErrClosed = errors.New("session manager closed")
)

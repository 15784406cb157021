package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/apierr"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrBuilderUsed is returned by a second call to Builder.Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrClientClosed is returned by Client operations after Close.
	ErrClientClosed = errors.New("client closed")

	// ErrNotAuthenticated aliases session.ErrNotAuthenticated.
	ErrNotAuthenticated = session.ErrNotAuthenticated
	// ErrNoRefreshToken aliases session.ErrNoRefreshToken.
	ErrNoRefreshToken = session.ErrNoRefreshToken
	// ErrSessionExpired aliases session.ErrSessionExpired.
	ErrSessionExpired = session.ErrSessionExpired

	// ErrNetwork matches transport failures.
	ErrNetwork = apierr.ErrNetwork
	// ErrAuthentication matches 401 responses.
	ErrAuthentication = apierr.ErrAuthentication
	// ErrValidation matches other 4xx responses.
	ErrValidation = apierr.ErrValidation
	// ErrServer matches 5xx responses.
	ErrServer = apierr.ErrServer
)

// Package session owns the client-side session state machine.
//
// A [Manager] is the single writer of one Session. It has two states:
// Unauthenticated (no token) and Authenticated (token and user). Login moves to
// Authenticated, Logout and any 401 move to Unauthenticated, Refresh keeps
// Authenticated with a new token. There is no intermediate refreshing state.
//
// # Observers
//
// Every committed transition is published as an [Event] to subscribed observers,
// synchronously and in subscription order, after the state lock is released.
// Observers must not call mutating Manager methods from Notify; wrap slow or
// re-entrant observers in an [AsyncObserver].
//
// # Architecture boundaries
//
// The Manager delegates network calls to an [Authenticator] (package authapi) and
// persistence to a tokenstore.Store. It never builds HTTP requests itself.
//
// # What this package must NOT do
//
//   - Import goSession (no upward imports).
//   - Retry failed backend calls.
//   - Expose token values in events or logs.
package session

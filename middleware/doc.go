// Package middleware gates navigation on the session state.
//
// # Guards
//
//   - [RouteGuard.Check] is the transport-agnostic decision: given a path, allow
//     it, or deny it with a login redirect and a reason.
//   - [Guard] adapts a RouteGuard to net/http. API requests are denied with a 401
//     JSON envelope, page requests with a 303 to the login path carrying a
//     sanitised redirect_uri.
//
// # Architecture boundaries
//
// This package reads the session through [SessionReader]. It never logs in,
// refreshes, or clears a session itself.
//
// # What this package must NOT do
//
//   - Call the backend.
//   - Redirect to absolute or protocol-relative URLs.
package middleware

// Package apierr classifies failures of calls against the auth backend into the
// four kinds callers act on: network, authentication (401), validation (other
// 4xx) and server (5xx).
//
// # Architecture boundaries
//
// This package is a leaf. It knows HTTP status codes and the backend error
// envelope, nothing about sessions, storage, or navigation.
//
// # What this package must NOT do
//
//   - Import any other goSession package.
//   - Decide side effects. Clearing the session on [KindAuthentication] belongs to
//     the session package.
package apierr

// Package authserver is a small reference implementation of the REST auth backend
// the goSession client talks to. It backs the dev server, the portal demo and the
// end-to-end tests.
//
// Users live in SQLite or memory. Access tokens are JWTs carrying a backend
// session id (sid); refresh tokens are opaque, stored in Redis and rotated on every
// use. Logging out revokes the sid, after which /auth/me rejects any access token
// still carrying it. Security events go to an audit.Sink.
package authserver

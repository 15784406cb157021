// Package jwt issues and verifies the access tokens of the reference auth backend.
//
// Tokens carry the user id, the backend session id (sid) and the role. The client
// SDK never verifies these; it only reads exp without a key (see authapi).
package jwt

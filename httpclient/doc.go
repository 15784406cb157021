// Package httpclient is the single outbound gateway to the auth backend.
//
// Every request goes through [Client.Do], which attaches the current bearer token
// when the token source has one, stamps a request id, decodes JSON, and classifies
// failures with package apierr. A 401 invokes the unauthorized hook exactly once per
// response; the hook is where the session is cleared and the user sent to login.
//
// # What this package must NOT do
//
//   - Queue, retry, or replay requests.
//   - Hold session state. Tokens are read from the [oauth2.TokenSource] per request.
package httpclient

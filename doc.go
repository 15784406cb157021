// Package goSession is the client-side authentication and session SDK shared by the
// ERP frontends. It wires a token store, an HTTP gateway, the auth endpoints, the
// session state machine, and a route guard into one [Client].
//
// A [Client] is built once per process through [Builder.Build] and is safe for use
// from multiple goroutines.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Builder], [Config], and the
// metrics types. Sub-packages (tokenstore, httpclient, authapi, session, middleware)
// are usable on their own and never import this package.
//
// # What this package must NOT do
//
//   - Hold a second copy of session state. The session.Manager is the only owner.
//   - Retry, queue, or replay backend requests.
//   - Import metrics/export/* (they import goSession).
package goSession

// Package tokenstore persists the current session token and user profile under a
// package-specific storage key (for example "hr_token" or "finance_token").
//
// # Backends
//
// [MemoryStore] keeps the record in process memory. [FileStore] writes one JSON file
// per key into a directory and is the local-storage analogue for CLI and desktop
// processes; [Watch] reports when another process rewrites or removes that file.
// [RedisStore] shares the record between processes through Redis with a TTL equal to
// the token lifetime.
//
// # Architecture boundaries
//
// A Store is dumb storage: it never contacts the auth backend and never decides
// whether a record is still valid beyond dropping records past their expiry.
package tokenstore

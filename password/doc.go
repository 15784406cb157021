// Package password hashes and verifies user passwords with Argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// A hash made with weaker parameters than the Hasher's reports NeedsRehash, so the
// backend can upgrade it after the next successful login.
package password

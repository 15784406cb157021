// Package audit records security-relevant actions of the reference backend:
// sign-ins, refresh rotation and reuse, logouts and password changes.
package audit

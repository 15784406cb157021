// Package rate implements the fixed-window login throttle of the reference backend.
//
// Counters live in Redis: INCR, then EXPIRE on the first hit of a window. Keys are
// "<prefix>login:u:<email>" and "<prefix>login:ip:<addr>".
package rate

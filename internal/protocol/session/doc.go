// Package session owns client session reliability primitives.
//
// Ownership boundary:
// - timeout/heartbeat/backoff configuration
// - reconnect backoff calculation
// - pending request bookkeeping
package session

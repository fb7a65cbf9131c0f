// Package client is the session client for the help line protocol.
//
// Ownership boundary:
// - session identity (user) and handshake per connection
// - heartbeat watchdog and reconnect generations
// - request/reply correlation with per-request deadlines
//
// Lifecycle:
// - disconnected -> connected -> reconnecting -> disconnected ...
// - closed is terminal.
//
// Reconnects are driven only by heartbeat absence. Socket errors are
// delivered to whatever is registered at the time and do not reconnect.
package client

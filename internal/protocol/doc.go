// Package protocol owns the line-delimited JSON wire contract.
//
// Ownership boundary:
// - newline framing of inbound chunks
// - handshake/request encoders
// - heartbeat and request-id matching
// - reply decoding
package protocol

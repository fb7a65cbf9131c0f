// Package mux shares one TCP socket between many response consumers.
//
// Ownership boundary:
// - lazy socket open on first registration, close when the last consumer leaves
// - newline framing of inbound chunks and in-order fan-out to consumers
// - error fan-out: every registered consumer sees a connection failure once
//
// A Multiplexer is not safe for concurrent use. All methods, hooks and
// consumer callbacks run on the Scheduler passed to New.
package mux

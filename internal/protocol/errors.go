package protocol

import "errors"

var (
	ErrMissingUser      = errors.New("protocol: handshake missing user")
	ErrMissingCommand   = errors.New("protocol: request missing command")
	ErrMissingRequestID = errors.New("protocol: request missing id")
	ErrMalformedMessage = errors.New("protocol: malformed message")
)

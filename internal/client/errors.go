package client

import (
	"errors"

	"github.com/danmuck/helpctl/internal/mux"
)

var (
	ErrInvalidArguments  = errors.New("client: host, port and user are required")
	ErrInvalidArgument   = errors.New("client: command required")
	ErrInvalidCommand    = errors.New("client: invalid command")
	ErrClientClosed      = errors.New("client: client has been closed")
	ErrTimeout           = errors.New("client: request timed out")
	ErrMalformedResponse = errors.New("client: malformed response")

	// ErrConnectionClosed reaches pending calls when the server ends the socket.
	ErrConnectionClosed = mux.ErrConnectionClosed
)

package session

import "errors"

var (
	// ErrMalformedControl indicates an inbound control message that could not be applied.
	ErrMalformedControl = errors.New("malformed control message")
	// ErrTransport indicates a failed read or write on the subscriber transport. It ends that session only.
	ErrTransport = errors.New("transport error")
	// ErrNoHub indicates that sessions were created without a snapshot hub.
	ErrNoHub = errors.New("snapshot hub is required")
)

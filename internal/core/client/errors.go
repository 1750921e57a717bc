package client

import "errors"

// Client result set. Every fallible operation returns OK (nil) or one of
// these; transport-specific error detail never crosses this boundary.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotSupported      = errors.New("not supported")
	ErrAlreadyInProgress = errors.New("operation already in progress")
	ErrDestroyed         = errors.New("client handle has been destroyed")
	ErrNoMessageReceived = errors.New("no message has been received")
)

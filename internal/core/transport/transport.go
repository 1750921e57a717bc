// Package transport defines the capability the client core is written
// against. Concrete wire protocols (WebSocket, QUIC, or anything the caller
// supplies) live behind this interface; swapping one for another must not
// change core behavior. Every method is required to return promptly: the
// core is cooperative and single-threaded, so a transport that blocks in
// Send or Poll stalls the whole client.
package transport

import (
	"context"
	"errors"

	"github.com/hublink/hublink/internal/core/config"
)

// Transport errors
var (
	ErrNotConnected       = errors.New("transport is not connected")
	ErrAlreadyConnected   = errors.New("transport is already connected")
	ErrOptionNotSupported = errors.New("option not supported by this transport")
	ErrConnectFailed      = errors.New("transport connect failed")
)

// Reason qualifies a connection status change.
type Reason int

const (
	ReasonOK Reason = iota
	ReasonExpiredToken
	ReasonDeviceDisabled
	ReasonBadCredential
	ReasonRetryExpired
	ReasonNoNetwork
	ReasonCommunicationError
)

func (r Reason) String() string {
	switch r {
	case ReasonOK:
		return "ok"
	case ReasonExpiredToken:
		return "expired_token"
	case ReasonDeviceDisabled:
		return "device_disabled"
	case ReasonBadCredential:
		return "bad_credential"
	case ReasonRetryExpired:
		return "retry_expired"
	case ReasonNoNetwork:
		return "no_network"
	case ReasonCommunicationError:
		return "communication_error"
	default:
		return "unknown"
	}
}

// SendOutcome is the transport-reported fate of one delivery attempt.
type SendOutcome int

const (
	// Delivered means the hub acknowledged the message.
	Delivered SendOutcome = iota
	// TransientFailure means the attempt failed but a retry may succeed.
	TransientFailure
	// FatalFailure means the message can never be delivered.
	FatalFailure
)

// Disposition is the device's verdict on an inbound cloud-to-device message.
type Disposition int

const (
	DispositionAccepted Disposition = iota
	DispositionRejected
	DispositionAbandoned
)

// Transport is the pluggable wire provider consumed by the client core.
//
// Send, SendReported and RespondMethod hand data off; their final outcome
// (where one exists) arrives later as an Event from Poll. Poll must never
// block: it returns whatever is ready, possibly nothing.
type Transport interface {
	Connect(ctx context.Context, dev config.Device) error
	Disconnect() error

	Send(msg *Message) error
	SendReported(payload []byte) error
	RespondMethod(token string, status int, payload []byte) error
	SettleMessage(messageID string, d Disposition) error

	Poll() []Event

	SetOption(name string, value any) error
}

package transport

import (
	"context"

	"github.com/hublink/hublink/internal/core/config"
)

var _ Transport = (*Loopback)(nil)

// MethodResponse records one method response handed to the transport.
type MethodResponse struct {
	Token   string
	Status  int
	Payload []byte
}

// Loopback is an in-memory transport. The "hub side" is scripted by the
// caller: tests and the simulator push events that Poll will deliver and
// inspect what the core handed off. Like the core itself it is meant for a
// single logical thread of control.
type Loopback struct {
	connected bool

	// Scripted connect failures, consumed one per Connect call.
	connectErrs []error

	// AutoAck, when set, acknowledges every Send immediately with the
	// given outcome on the next Poll.
	AutoAck        bool
	AutoAckOutcome SendOutcome

	pending []Event

	// Hub-side observations.
	SentMessages  []*Message
	ReportedState [][]byte
	Responses     []MethodResponse
	Settled       map[string]Disposition
	Options       map[string]any
	ConnectCalls  int

	supported map[string]bool
}

func NewLoopback() *Loopback {
	return &Loopback{
		Settled:   make(map[string]Disposition),
		Options:   make(map[string]any),
		supported: make(map[string]bool),
	}
}

// FailConnects scripts the next calls to Connect to fail with the given
// errors, in order.
func (l *Loopback) FailConnects(errs ...error) {
	l.connectErrs = append(l.connectErrs, errs...)
}

// PushEvent queues an event for the next Poll.
func (l *Loopback) PushEvent(e Event) {
	l.pending = append(l.pending, e)
}

// SupportOption marks an option name as recognized by SetOption.
func (l *Loopback) SupportOption(name string) {
	l.supported[name] = true
}

func (l *Loopback) Connected() bool {
	return l.connected
}

func (l *Loopback) Connect(_ context.Context, dev config.Device) error {
	l.ConnectCalls++
	if len(l.connectErrs) > 0 {
		err := l.connectErrs[0]
		l.connectErrs = l.connectErrs[1:]
		return err
	}
	if err := dev.Validate(); err != nil {
		return err
	}
	l.connected = true
	return nil
}

func (l *Loopback) Disconnect() error {
	l.connected = false
	return nil
}

func (l *Loopback) Send(msg *Message) error {
	if !l.connected {
		return ErrNotConnected
	}
	l.SentMessages = append(l.SentMessages, msg)
	if l.AutoAck {
		l.PushEvent(SendAckEvent{Outcome: l.AutoAckOutcome})
	}
	return nil
}

func (l *Loopback) SendReported(payload []byte) error {
	if !l.connected {
		return ErrNotConnected
	}
	l.ReportedState = append(l.ReportedState, append([]byte(nil), payload...))
	return nil
}

func (l *Loopback) RespondMethod(token string, status int, payload []byte) error {
	if !l.connected {
		return ErrNotConnected
	}
	l.Responses = append(l.Responses, MethodResponse{Token: token, Status: status, Payload: payload})
	return nil
}

func (l *Loopback) SettleMessage(messageID string, d Disposition) error {
	l.Settled[messageID] = d
	return nil
}

func (l *Loopback) Poll() []Event {
	events := l.pending
	l.pending = nil
	return events
}

func (l *Loopback) SetOption(name string, value any) error {
	if !l.supported[name] {
		return ErrOptionNotSupported
	}
	l.Options[name] = value
	return nil
}

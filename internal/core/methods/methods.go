// Package methods correlates inbound device-method invocations with the
// responses device code supplies. The correlation token is issued by the
// transport; the dispatcher guarantees a given token is answered exactly
// once.
package methods

import (
	"errors"
	"time"
)

// Dispatcher errors. ErrUnknownToken indicates a device-code bug (double
// response or forged token) and is reported to the caller, never swallowed.
var (
	ErrUnknownToken = errors.New("unknown or already answered method token")
	ErrNoHandler    = errors.New("no method handler registered")
)

// StatusNotImplemented is returned to the hub when a request arrives while
// no handler is registered.
const StatusNotImplemented = 501

// Mode is the handler registration state. Sync and async registration are
// mutually exclusive; setting one supersedes the other.
type Mode int

const (
	ModeNone Mode = iota
	ModeSync
	ModeAsync
)

// SyncHandler answers an invocation inline. The returned status and payload
// are forwarded to the transport immediately.
type SyncHandler func(name string, payload []byte, userCtx any) (status int, response []byte)

// AsyncHandler accepts an invocation for deferred completion. The device
// must later answer the token through Respond. A non-nil error rejects the
// invocation up front.
type AsyncHandler func(name string, payload []byte, token string, userCtx any) error

// RespondFunc forwards a response to the transport.
type RespondFunc func(token string, status int, payload []byte) error

type invocation struct {
	deadline time.Time
}

// Dispatcher routes method requests to the registered handler and tracks
// live async invocations by token.
type Dispatcher struct {
	mode    Mode
	sync    SyncHandler
	async   AsyncHandler
	userCtx any

	live    map[string]invocation
	timeout time.Duration
	now     func() time.Time
}

func NewDispatcher(now func() time.Time) *Dispatcher {
	return &Dispatcher{
		live: make(map[string]invocation),
		now:  now,
	}
}

func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// SetTimeout bounds the lifetime of unanswered async invocations. Zero
// disables the deadline.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// SetSync registers the synchronous handler, superseding any async one.
// A nil handler clears the registration.
func (d *Dispatcher) SetSync(h SyncHandler, userCtx any) {
	d.async = nil
	d.sync = h
	d.userCtx = userCtx
	if h == nil {
		d.mode = ModeNone
		return
	}
	d.mode = ModeSync
}

// SetAsync registers the asynchronous handler, superseding any sync one.
// A nil handler clears the registration.
func (d *Dispatcher) SetAsync(h AsyncHandler, userCtx any) {
	d.sync = nil
	d.async = h
	d.userCtx = userCtx
	if h == nil {
		d.mode = ModeNone
		return
	}
	d.mode = ModeAsync
}

// Dispatch routes one inbound invocation. In sync mode the response is
// forwarded before Dispatch returns; in async mode the invocation is held
// until Respond is called with the same token.
func (d *Dispatcher) Dispatch(token, name string, payload []byte, respond RespondFunc) error {
	switch d.mode {
	case ModeSync:
		status, response := d.sync(name, payload, d.userCtx)
		return respond(token, status, response)
	case ModeAsync:
		if err := d.async(name, payload, token, d.userCtx); err != nil {
			return respond(token, StatusNotImplemented, nil)
		}
		inv := invocation{}
		if d.timeout > 0 {
			inv.deadline = d.now().Add(d.timeout)
		}
		d.live[token] = inv
		return nil
	default:
		_ = respond(token, StatusNotImplemented, nil)
		return ErrNoHandler
	}
}

// Respond completes a live async invocation. The token is consumed: a second
// Respond for the same token fails with ErrUnknownToken.
func (d *Dispatcher) Respond(token string, status int, payload []byte, respond RespondFunc) error {
	if _, ok := d.live[token]; !ok {
		return ErrUnknownToken
	}
	delete(d.live, token)
	return respond(token, status, payload)
}

// SweepExpired drops async invocations past their deadline and returns the
// dropped tokens. A later Respond for a dropped token fails with
// ErrUnknownToken, preserving the single-response guarantee.
func (d *Dispatcher) SweepExpired() []string {
	if d.timeout <= 0 {
		return nil
	}
	var expired []string
	now := d.now()
	for token, inv := range d.live {
		if !inv.deadline.IsZero() && now.After(inv.deadline) {
			expired = append(expired, token)
			delete(d.live, token)
		}
	}
	return expired
}

// LiveCount returns the number of unanswered async invocations.
func (d *Dispatcher) LiveCount() int {
	return len(d.live)
}

// Package connection tracks the authentication state of the link to the hub
// and drives reconnection through the retry engine. The tracker never talks
// to the network itself; the scheduler hands it a connect function on every
// tick.
package connection

import (
	"time"

	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/retry"
	"github.com/hublink/hublink/internal/core/transport"
)

// Status is the externally visible side of the state machine, as delivered
// to the connection-status callback.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// State is the internal connection state.
type State int

const (
	StateNotConnected State = iota
	StateAuthenticated
	StateDisconnected
)

// Callback observes status transitions. It fires at most once per edge and
// never for a no-op transition.
type Callback func(status Status, reason transport.Reason)

// Tracker is the connection finite state machine.
type Tracker struct {
	state  State
	reason transport.Reason

	engine *retry.Engine
	cb     Callback
	now    func() time.Time
	logger log.Log

	// Retry bookkeeping, meaningful only in StateDisconnected.
	firstFailure time.Time
	attempts     int
	nextRetryAt  time.Time
	terminal     bool

	// Last (status, reason) pair delivered to the callback.
	notified       bool
	notifiedStatus Status
	notifiedReason transport.Reason
}

func NewTracker(engine *retry.Engine, now func() time.Time, logger log.Log) *Tracker {
	return &Tracker{
		state:  StateNotConnected,
		engine: engine,
		now:    now,
		logger: logger,
	}
}

func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) Reason() transport.Reason {
	return t.reason
}

func (t *Tracker) Authenticated() bool {
	return t.state == StateAuthenticated
}

// SetCallback registers the status observer. Passing nil unregisters it.
func (t *Tracker) SetCallback(cb Callback) {
	t.cb = cb
}

// SetRetry replaces the retry engine. Failure history is kept; the new
// policy applies from the next due check.
func (t *Tracker) SetRetry(engine *retry.Engine) {
	t.engine = engine
}

func (t *Tracker) RetryConfig() retry.Config {
	return t.engine.Config()
}

// HandleConnected records a successful authentication reported by the
// transport.
func (t *Tracker) HandleConnected() {
	if t.state == StateAuthenticated {
		return
	}
	t.state = StateAuthenticated
	t.reason = transport.ReasonOK
	t.attempts = 0
	t.terminal = false
	t.firstFailure = time.Time{}
	t.logger.Info("connection authenticated")
	t.notify(StatusConnected, transport.ReasonOK)
}

// HandleDisconnected records a connection loss reported by the transport.
func (t *Tracker) HandleDisconnected(reason transport.Reason) {
	if t.state == StateDisconnected && t.terminal {
		return
	}
	wasAuthenticated := t.state == StateAuthenticated
	t.state = StateDisconnected
	t.reason = reason
	if wasAuthenticated || t.firstFailure.IsZero() {
		t.firstFailure = t.now()
		t.attempts = 0
	}
	t.logger.Warn("connection lost", log.String("reason", reason.String()))
	t.scheduleNext()
	t.notify(StatusDisconnected, reason)
}

// Tick advances the state machine. connect is invoked when a connection
// attempt is due; a nil return means the transport authenticated.
func (t *Tracker) Tick(connect func() error) {
	switch t.state {
	case StateAuthenticated:
		return
	case StateNotConnected:
		t.attempt(connect)
	case StateDisconnected:
		if t.terminal {
			return
		}
		if t.now().Before(t.nextRetryAt) {
			return
		}
		t.attempt(connect)
	}
}

func (t *Tracker) attempt(connect func() error) {
	err := connect()
	if err == nil {
		t.HandleConnected()
		return
	}
	t.logger.Debug("connect attempt failed",
		log.Int("attempt", t.attempts),
		log.Error(err))

	if t.firstFailure.IsZero() {
		t.firstFailure = t.now()
	}
	t.state = StateDisconnected
	if t.reason == transport.ReasonOK {
		t.reason = transport.ReasonCommunicationError
	}
	t.scheduleNext()
	if !t.terminal {
		t.notify(StatusDisconnected, t.reason)
	}
}

// scheduleNext consults the retry engine and either arms the next attempt
// or transitions to the terminal retry-expired state. attempts counts the
// backoffs armed since the failure episode began, so the first backoff of an
// episode always uses the engine's attempt-zero delay.
func (t *Tracker) scheduleNext() {
	elapsed := t.now().Sub(t.firstFailure)
	delay, ok := t.engine.Next(t.attempts, elapsed)
	if !ok {
		t.terminal = true
		t.reason = transport.ReasonRetryExpired
		t.logger.Error("reconnect attempts exhausted",
			log.Int("attempts", t.attempts),
			log.Duration("elapsed", elapsed))
		t.notify(StatusDisconnected, transport.ReasonRetryExpired)
		return
	}
	t.nextRetryAt = t.now().Add(delay)
	t.attempts++
}

func (t *Tracker) notify(status Status, reason transport.Reason) {
	if t.cb == nil {
		return
	}
	if t.notified && t.notifiedStatus == status && t.notifiedReason == reason {
		return
	}
	t.notified = true
	t.notifiedStatus = status
	t.notifiedReason = reason
	t.cb(status, reason)
}

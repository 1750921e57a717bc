// Package outbox holds device-to-cloud event messages from enqueue until
// their terminal outcome. Messages are attempted in strict FIFO order with
// at most one delivery attempt in flight; a later message is never attempted
// before an earlier one has resolved.
package outbox

import (
	"errors"
	"time"

	"github.com/hublink/hublink/internal/core/transport"
	"github.com/hublink/hublink/pkg/sequence"
)

var ErrEmptyPayload = errors.New("message payload is empty")

// Result is the terminal outcome delivered to a confirmation callback.
// Exactly one Result is delivered per enqueued message.
type Result int

const (
	ResultOK Result = iota
	ResultError
	ResultTimeout
	ResultDestroyed
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultTimeout:
		return "timeout"
	case ResultDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Callback receives the terminal outcome of one message together with the
// context supplied at enqueue time.
type Callback func(result Result, userCtx any)

type pending struct {
	msg      *transport.Message
	cb       Callback
	userCtx  any
	enqueued time.Time
	attempts int
	inFlight bool
}

// Queue is the ordered outbound message queue.
type Queue struct {
	q   *sequence.Queue[*pending]
	now func() time.Time
}

func NewQueue(now func() time.Time) *Queue {
	return &Queue{
		q:   sequence.NewQueue[*pending](),
		now: now,
	}
}

func (o *Queue) Len() int {
	return o.q.Len()
}

func (o *Queue) Empty() bool {
	return o.q.Len() == 0
}

// Enqueue appends a copy of the message; the caller is free to reuse or
// mutate msg afterwards. The callback may be nil when the caller does not
// care about the outcome.
func (o *Queue) Enqueue(msg *transport.Message, cb Callback, userCtx any) error {
	if msg == nil || len(msg.Payload) == 0 {
		return ErrEmptyPayload
	}
	o.q.Push(&pending{
		msg:      msg.Clone(),
		cb:       cb,
		userCtx:  userCtx,
		enqueued: o.now(),
	})
	return nil
}

// Drain hands the head message to the transport if no attempt is in flight.
// A synchronous send error counts as a transient attempt failure: the entry
// stays queued for a later tick.
func (o *Queue) Drain(send func(*transport.Message) error) {
	head, ok := o.q.Peek()
	if !ok || head.inFlight {
		return
	}
	head.attempts++
	if err := send(head.msg); err != nil {
		return
	}
	head.inFlight = true
}

// HandleAck resolves the in-flight attempt. Correlation is by order: the
// transport reports attempt outcomes in submission order and only one
// attempt is ever outstanding.
func (o *Queue) HandleAck(outcome transport.SendOutcome) {
	head, ok := o.q.Peek()
	if !ok || !head.inFlight {
		return
	}
	switch outcome {
	case transport.Delivered:
		o.q.Pop()
		o.complete(head, ResultOK)
	case transport.FatalFailure:
		o.q.Pop()
		o.complete(head, ResultError)
	case transport.TransientFailure:
		head.inFlight = false
	}
}

// ExpireStale times out messages older than timeout, oldest first. The scan
// stops at the first entry that is in flight or not yet stale: an entry
// behind an unresolved earlier one must not reach its terminal outcome
// first, and an in-flight attempt resolves through its ack, not here.
func (o *Queue) ExpireStale(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	deadline := o.now().Add(-timeout)
	for {
		head, ok := o.q.Peek()
		if !ok || head.inFlight || head.enqueued.After(deadline) {
			return
		}
		o.q.Pop()
		o.complete(head, ResultTimeout)
	}
}

// FailAll resolves every pending message with the given result. Used on
// teardown.
func (o *Queue) FailAll(result Result) {
	for _, p := range o.q.Drain() {
		o.complete(p, result)
	}
}

func (o *Queue) complete(p *pending, result Result) {
	if p.cb == nil {
		return
	}
	cb := p.cb
	p.cb = nil // exactly once
	cb(result, p.userCtx)
}

// Package twin reconciles cloud-pushed desired properties with
// device-reported state. Desired patches carry a monotonic version; stale or
// duplicate versions are dropped so patch application is idempotent.
// Reported-state submissions are a FIFO matched to acknowledgments by
// submission order, because the transport does not echo application-level
// identifiers.
package twin

import (
	"github.com/hublink/hublink/pkg/sequence"
)

// VersionUnseen marks a version counter that has not been observed yet.
const VersionUnseen int64 = -1

// StatusNoResponse is the reported-state status code used when a submission
// is terminated locally (teardown) before the hub answered.
const StatusNoResponse = 0

// PatchCallback observes an applied desired-properties patch. It receives
// the new desired version alongside the last reported version the hub has
// acknowledged, so device code can reason about drift.
type PatchCallback func(payload []byte, desiredVersion, lastReportedVersion int64, userCtx any)

// ReportedCallback receives the terminal status of one reported-state
// submission.
type ReportedCallback func(statusCode int, userCtx any)

type submission struct {
	payload  []byte
	cb       ReportedCallback
	userCtx  any
	inFlight bool
}

// Synchronizer tracks both directions of the twin model.
type Synchronizer struct {
	desired      int64
	lastReported int64

	patchCB  PatchCallback
	patchCtx any

	pending *sequence.Queue[*submission]
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		desired:      VersionUnseen,
		lastReported: VersionUnseen,
		pending:      sequence.NewQueue[*submission](),
	}
}

// SetPatchCallback registers the desired-properties observer. Passing nil
// unregisters it; patches still advance the tracked version.
func (s *Synchronizer) SetPatchCallback(cb PatchCallback, userCtx any) {
	s.patchCB = cb
	s.patchCtx = userCtx
}

// DesiredVersion returns the highest desired version applied so far.
func (s *Synchronizer) DesiredVersion() int64 {
	return s.desired
}

// LastReportedVersion returns the newest hub-acknowledged reported version.
func (s *Synchronizer) LastReportedVersion() int64 {
	return s.lastReported
}

// ApplyPatch applies an inbound desired patch when its version is newer than
// the tracked one. Stale and duplicate versions are dropped silently and the
// callback is not invoked for them.
func (s *Synchronizer) ApplyPatch(version int64, payload []byte) bool {
	if version <= s.desired {
		return false
	}
	s.desired = version
	if s.patchCB != nil {
		s.patchCB(payload, s.desired, s.lastReported, s.patchCtx)
	}
	return true
}

// SubmitReported queues a reported-state document for delivery.
func (s *Synchronizer) SubmitReported(payload []byte, cb ReportedCallback, userCtx any) {
	s.pending.Push(&submission{
		payload: append([]byte(nil), payload...),
		cb:      cb,
		userCtx: userCtx,
	})
}

// PendingReported returns the number of unresolved submissions.
func (s *Synchronizer) PendingReported() int {
	return s.pending.Len()
}

// Drain hands the oldest unsent submission to the transport. One submission
// is in flight at a time, which makes order-based ack correlation sound.
func (s *Synchronizer) Drain(send func([]byte) error) {
	head, ok := s.pending.Peek()
	if !ok || head.inFlight {
		return
	}
	if err := send(head.payload); err != nil {
		return
	}
	head.inFlight = true
}

// HandleAck resolves the in-flight submission with the hub's status and
// advances the last-seen reported version when the hub assigned one.
func (s *Synchronizer) HandleAck(statusCode int, version int64) {
	head, ok := s.pending.Peek()
	if !ok || !head.inFlight {
		return
	}
	s.pending.Pop()
	if version > s.lastReported {
		s.lastReported = version
	}
	if head.cb != nil {
		head.cb(statusCode, head.userCtx)
	}
}

// FailAll terminates every pending submission with StatusNoResponse. Used on
// teardown.
func (s *Synchronizer) FailAll() {
	for _, sub := range s.pending.Drain() {
		if sub.cb != nil {
			sub.cb(StatusNoResponse, sub.userCtx)
		}
	}
}

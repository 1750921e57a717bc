package twin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appliedPatch struct {
	payload  string
	desired  int64
	reported int64
}

func TestSynchronizer_AppliesNewerVersion(t *testing.T) {
	s := NewSynchronizer()
	var applied []appliedPatch
	s.SetPatchCallback(func(payload []byte, desired, reported int64, _ any) {
		applied = append(applied, appliedPatch{string(payload), desired, reported})
	}, nil)

	assert.True(t, s.ApplyPatch(3, []byte(`{"a":1}`)))
	assert.True(t, s.ApplyPatch(7, []byte(`{"a":2}`)))

	require.Len(t, applied, 2)
	assert.Equal(t, int64(7), s.DesiredVersion())
	assert.Equal(t, VersionUnseen, applied[1].reported)
}

func TestSynchronizer_DropsStaleAndDuplicateVersions(t *testing.T) {
	s := NewSynchronizer()
	calls := 0
	s.SetPatchCallback(func([]byte, int64, int64, any) { calls++ }, nil)

	require.True(t, s.ApplyPatch(7, []byte(`{"a":2}`)))

	// Version 5 arriving after 7 was applied is dropped silently.
	assert.False(t, s.ApplyPatch(5, []byte(`{"a":1}`)))
	// Replaying the same version is idempotent.
	assert.False(t, s.ApplyPatch(7, []byte(`{"a":2}`)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(7), s.DesiredVersion())
}

func TestSynchronizer_ReportedAckMatchesSubmissionOrder(t *testing.T) {
	s := NewSynchronizer()
	var sent []string
	var acked []string

	s.SubmitReported([]byte("r1"), func(status int, userCtx any) {
		acked = append(acked, userCtx.(string))
		assert.Equal(t, 204, status)
	}, "first")
	s.SubmitReported([]byte("r2"), func(status int, userCtx any) {
		acked = append(acked, userCtx.(string))
	}, "second")

	send := func(payload []byte) error {
		sent = append(sent, string(payload))
		return nil
	}

	s.Drain(send)
	s.Drain(send)
	require.Equal(t, []string{"r1"}, sent, "one submission in flight at a time")

	s.HandleAck(204, 5)
	assert.Equal(t, []string{"first"}, acked)
	assert.Equal(t, int64(5), s.LastReportedVersion())

	s.Drain(send)
	require.Equal(t, []string{"r1", "r2"}, sent)
	s.HandleAck(204, 6)
	assert.Equal(t, []string{"first", "second"}, acked)
	assert.Equal(t, int64(6), s.LastReportedVersion())
}

func TestSynchronizer_PatchCallbackSeesReportedVersion(t *testing.T) {
	s := NewSynchronizer()

	s.SubmitReported([]byte("r1"), nil, nil)
	s.Drain(func([]byte) error { return nil })
	s.HandleAck(204, 4)

	var sawReported int64
	s.SetPatchCallback(func(_ []byte, _, reported int64, _ any) {
		sawReported = reported
	}, nil)
	s.ApplyPatch(9, []byte(`{}`))

	assert.Equal(t, int64(4), sawReported)
}

func TestSynchronizer_SendErrorKeepsSubmission(t *testing.T) {
	s := NewSynchronizer()
	s.SubmitReported([]byte("r1"), nil, nil)

	s.Drain(func([]byte) error { return errors.New("link down") })
	assert.Equal(t, 1, s.PendingReported())

	var sent []string
	s.Drain(func(payload []byte) error {
		sent = append(sent, string(payload))
		return nil
	})
	assert.Equal(t, []string{"r1"}, sent)
}

func TestSynchronizer_StrayAckIgnored(t *testing.T) {
	s := NewSynchronizer()

	s.HandleAck(204, 9)
	assert.Equal(t, VersionUnseen, s.LastReportedVersion())

	s.SubmitReported([]byte("r1"), nil, nil)
	// Not drained yet, so nothing is in flight.
	s.HandleAck(204, 9)
	assert.Equal(t, 1, s.PendingReported())
}

func TestSynchronizer_FailAll(t *testing.T) {
	s := NewSynchronizer()
	var statuses []int
	cb := func(status int, _ any) { statuses = append(statuses, status) }

	s.SubmitReported([]byte("r1"), cb, nil)
	s.SubmitReported([]byte("r2"), cb, nil)
	s.FailAll()

	assert.Equal(t, []int{StatusNoResponse, StatusNoResponse}, statuses)
	assert.Zero(t, s.PendingReported())
}

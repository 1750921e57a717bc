package methods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	token   string
	status  int
	payload string
}

type methodHarness struct {
	dispatcher *Dispatcher
	now        time.Time
	responses  []response
}

func newHarness() *methodHarness {
	h := &methodHarness{now: time.Unix(0, 0)}
	h.dispatcher = NewDispatcher(func() time.Time { return h.now })
	return h
}

func (h *methodHarness) respond(token string, status int, payload []byte) error {
	h.responses = append(h.responses, response{token, status, string(payload)})
	return nil
}

func TestDispatcher_SyncModeRespondsInline(t *testing.T) {
	h := newHarness()
	h.dispatcher.SetSync(func(name string, payload []byte, userCtx any) (int, []byte) {
		assert.Equal(t, "reboot", name)
		assert.Equal(t, "ctx", userCtx)
		return 200, []byte(`{"ok":true}`)
	}, "ctx")

	err := h.dispatcher.Dispatch("tok-1", "reboot", []byte(`{}`), h.respond)

	require.NoError(t, err)
	require.Len(t, h.responses, 1)
	assert.Equal(t, response{"tok-1", 200, `{"ok":true}`}, h.responses[0])
	assert.Zero(t, h.dispatcher.LiveCount(), "sync invocations are never persisted")
}

func TestDispatcher_AsyncModeDefersResponse(t *testing.T) {
	h := newHarness()
	var gotToken string
	h.dispatcher.SetAsync(func(name string, payload []byte, token string, _ any) error {
		gotToken = token
		return nil
	}, nil)

	require.NoError(t, h.dispatcher.Dispatch("tok-7", "collect", nil, h.respond))
	assert.Empty(t, h.responses, "no response until the device answers")
	assert.Equal(t, 1, h.dispatcher.LiveCount())

	require.NoError(t, h.dispatcher.Respond(gotToken, 200, []byte("done"), h.respond))
	require.Len(t, h.responses, 1)
	assert.Equal(t, response{"tok-7", 200, "done"}, h.responses[0])
	assert.Zero(t, h.dispatcher.LiveCount())
}

func TestDispatcher_DoubleResponseRejected(t *testing.T) {
	h := newHarness()
	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	require.NoError(t, h.dispatcher.Respond("tok-1", 200, nil, h.respond))

	err := h.dispatcher.Respond("tok-1", 200, nil, h.respond)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.Len(t, h.responses, 1, "a token is answered exactly once")
}

func TestDispatcher_UnknownTokenRejected(t *testing.T) {
	h := newHarness()
	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)

	err := h.dispatcher.Respond("forged", 200, nil, h.respond)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestDispatcher_RegistrationModesAreExclusive(t *testing.T) {
	h := newHarness()

	h.dispatcher.SetSync(func(string, []byte, any) (int, []byte) { return 200, nil }, nil)
	assert.Equal(t, ModeSync, h.dispatcher.Mode())

	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)
	assert.Equal(t, ModeAsync, h.dispatcher.Mode())

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	assert.Empty(t, h.responses, "async handler took over")
	assert.Equal(t, 1, h.dispatcher.LiveCount())

	h.dispatcher.SetAsync(nil, nil)
	assert.Equal(t, ModeNone, h.dispatcher.Mode())
}

func TestDispatcher_NoHandlerAnswersNotImplemented(t *testing.T) {
	h := newHarness()

	err := h.dispatcher.Dispatch("tok-1", "m", nil, h.respond)

	assert.ErrorIs(t, err, ErrNoHandler)
	require.Len(t, h.responses, 1)
	assert.Equal(t, StatusNotImplemented, h.responses[0].status)
}

func TestDispatcher_DeadlineSweep(t *testing.T) {
	h := newHarness()
	h.dispatcher.SetTimeout(30 * time.Second)
	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	assert.Empty(t, h.dispatcher.SweepExpired(), "not expired yet")

	h.now = h.now.Add(time.Minute)
	expired := h.dispatcher.SweepExpired()
	assert.Equal(t, []string{"tok-1"}, expired)

	// A dropped token behaves like an unknown one.
	err := h.dispatcher.Respond("tok-1", 200, nil, h.respond)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestDispatcher_ZeroTimeoutNeverExpires(t *testing.T) {
	h := newHarness()
	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	h.now = h.now.Add(365 * 24 * time.Hour)

	assert.Empty(t, h.dispatcher.SweepExpired())
	assert.Equal(t, 1, h.dispatcher.LiveCount())
}

func TestDispatcher_TokenReusableAfterResolution(t *testing.T) {
	// Correlation tokens are unique per live invocation only: once
	// resolved, the transport may issue the same token again and it
	// starts a fresh invocation.
	h := newHarness()
	h.dispatcher.SetAsync(func(string, []byte, string, any) error { return nil }, nil)

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	require.NoError(t, h.dispatcher.Respond("tok-1", 200, nil, h.respond))

	require.NoError(t, h.dispatcher.Dispatch("tok-1", "m", nil, h.respond))
	assert.Equal(t, 1, h.dispatcher.LiveCount())
	require.NoError(t, h.dispatcher.Respond("tok-1", 404, nil, h.respond))
	assert.Len(t, h.responses, 2)
}

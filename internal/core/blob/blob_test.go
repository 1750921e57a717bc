package blob

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hublink/hublink/internal/core/observability/log"
)

type terminal struct {
	result Result
	bytes  int64
}

func blockFeeder(blocks ...string) GetBlockFunc {
	i := 0
	return func(last BlockStatus) ([]byte, bool) {
		if i >= len(blocks) {
			return nil, false
		}
		block := blocks[i]
		i++
		return []byte(block), false
	}
}

func TestUploader_CompletesSession(t *testing.T) {
	store := NewMemStore()
	u := NewUploader(store, log.Nop())
	var done []terminal

	err := u.Start("logs.bin", blockFeeder("aaa", "bbbb"), func(result Result, bytes int64) {
		done = append(done, terminal{result, bytes})
	})
	require.NoError(t, err)
	require.True(t, u.Active())

	u.Advance() // aaa
	u.Advance() // bbbb
	u.Advance() // sentinel -> commit

	require.Equal(t, []terminal{{ResultCompleted, 7}}, done)
	assert.False(t, u.Active())
	assert.True(t, store.Committed["logs.bin"])

	blocks := store.Blocks["logs.bin"]
	require.Len(t, blocks, 2)
	assert.Equal(t, 0, blocks[0].Index)
	assert.Equal(t, 1, blocks[1].Index)
	assert.Equal(t, xxhash.Sum64([]byte("aaa")), blocks[0].Checksum)
	assert.Equal(t, xxhash.Sum64([]byte("bbbb")), blocks[1].Checksum)
}

func TestUploader_BusyWhileSessionActive(t *testing.T) {
	u := NewUploader(NewMemStore(), log.Nop())

	require.NoError(t, u.Start("a.bin", blockFeeder("x"), nil))
	assert.ErrorIs(t, u.Start("b.bin", blockFeeder("y"), nil), ErrBusy)

	// Run the first session to a terminal state; a new one may start.
	u.Advance()
	u.Advance()
	assert.NoError(t, u.Start("b.bin", blockFeeder("y"), nil))
}

func TestUploader_DeviceAbort(t *testing.T) {
	store := NewMemStore()
	u := NewUploader(store, log.Nop())
	var done []terminal

	calls := 0
	getBlock := func(last BlockStatus) ([]byte, bool) {
		calls++
		if calls == 1 {
			return []byte("first"), false
		}
		return nil, true // abort after the first block
	}

	require.NoError(t, u.Start("a.bin", getBlock, func(result Result, bytes int64) {
		done = append(done, terminal{result, bytes})
	}))
	u.Advance()
	u.Advance()

	require.Equal(t, []terminal{{ResultAborted, 5}}, done)
	assert.False(t, store.Committed["a.bin"])
	assert.Equal(t, 2, calls, "no further blocks requested after abort")
}

func TestUploader_StoreFailureDistinctFromAbort(t *testing.T) {
	store := NewMemStore()
	store.FailAtIndex = 1
	u := NewUploader(store, log.Nop())
	var done []terminal

	require.NoError(t, u.Start("a.bin", blockFeeder("one", "two", "three"), func(result Result, bytes int64) {
		done = append(done, terminal{result, bytes})
	}))
	u.Advance() // block 0 ok
	u.Advance() // block 1 fails

	require.Equal(t, []terminal{{ResultFailed, 3}}, done)
	assert.False(t, u.Active())
}

func TestUploader_BlockErrorNotifiesCallback(t *testing.T) {
	store := NewMemStore()
	store.FailAtIndex = 1
	u := NewUploader(store, log.Nop())

	var statuses []BlockStatus
	blocks := [][]byte{[]byte("one"), []byte("two")}
	getBlock := func(last BlockStatus) ([]byte, bool) {
		statuses = append(statuses, last)
		if last != BlockOK || len(blocks) == 0 {
			return nil, false
		}
		block := blocks[0]
		blocks = blocks[1:]
		return block, false
	}

	var done []terminal
	require.NoError(t, u.Start("a.bin", getBlock, func(result Result, bytes int64) {
		done = append(done, terminal{result, bytes})
	}))
	u.Advance() // block 0 ok
	u.Advance() // block 1 fails, final notification

	assert.Equal(t, []BlockStatus{BlockOK, BlockOK, BlockError}, statuses)
	require.Equal(t, []terminal{{ResultFailed, 3}}, done)
	assert.False(t, u.Active())
}

func TestUploader_CommitFailureFails(t *testing.T) {
	store := NewMemStore()
	store.FailCommit = true
	u := NewUploader(store, log.Nop())
	var results []Result

	require.NoError(t, u.Start("a.bin", blockFeeder("one"), func(result Result, _ int64) {
		results = append(results, result)
	}))
	u.Advance()
	u.Advance()

	assert.Equal(t, []Result{ResultFailed}, results)
}

func TestUploader_StartBufferChunks(t *testing.T) {
	store := NewMemStore()
	u := NewUploader(store, log.Nop())
	data := []byte("0123456789")
	var done []terminal

	require.NoError(t, u.StartBuffer("buf.bin", data, 4, func(result Result, bytes int64) {
		done = append(done, terminal{result, bytes})
	}))
	for i := 0; i < 4; i++ {
		u.Advance()
	}

	require.Equal(t, []terminal{{ResultCompleted, 10}}, done)
	require.Len(t, store.Blocks["buf.bin"], 3)
	assert.Equal(t, data, store.Bytes("buf.bin"))
}

func TestUploader_StartValidation(t *testing.T) {
	u := NewUploader(nil, log.Nop())
	assert.ErrorIs(t, u.Start("a", blockFeeder(), nil), ErrNoStore)

	u = NewUploader(NewMemStore(), log.Nop())
	assert.ErrorIs(t, u.Start("", blockFeeder(), nil), ErrBadInput)
	assert.ErrorIs(t, u.Start("a", nil, nil), ErrBadInput)
	assert.ErrorIs(t, u.StartBuffer("a", nil, 4, nil), ErrBadInput)
	assert.ErrorIs(t, u.StartBuffer("a", []byte("x"), 0, nil), ErrBadInput)
}

func TestUploader_CancelAborts(t *testing.T) {
	u := NewUploader(NewMemStore(), log.Nop())
	var results []Result

	require.NoError(t, u.Start("a.bin", blockFeeder("one", "two"), func(result Result, _ int64) {
		results = append(results, result)
	}))
	u.Advance()
	u.Cancel()

	assert.Equal(t, []Result{ResultAborted}, results)
	assert.False(t, u.Active())

	u.Cancel() // idempotent
	assert.Len(t, results, 1)
}

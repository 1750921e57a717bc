// Package blob drives a block-by-block upload to an external storage
// transport. One session is active at a time; each scheduler tick advances
// the session by exactly one block so the core stays cooperative.
package blob

import (
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/hublink/hublink/internal/core/observability/log"
)

// Orchestrator errors
var (
	ErrBusy     = errors.New("an upload session is already active")
	ErrNoStore  = errors.New("no blob store configured")
	ErrBadInput = errors.New("invalid upload arguments")
)

// Store is the boundary to the storage transport. The orchestrator decides
// what to upload and when; the store owns the wire protocol. The checksum is
// an xxhash of the block, forwarded for end-to-end integrity checks.
type Store interface {
	PutBlock(name string, index int, block []byte, checksum uint64) error
	// Commit finalizes the blob. ok reports whether the upload ran to
	// completion; an aborted or failed upload commits with ok == false.
	Commit(name string, ok bool) error
}

// Result is the terminal outcome of a session. Device-requested aborts are
// distinguishable from storage failures.
type Result int

const (
	ResultCompleted Result = iota
	ResultAborted
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultAborted:
		return "aborted"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BlockStatus is the outcome of the previous block's transmission, handed to
// the data callback on each acquisition step.
type BlockStatus int

const (
	BlockOK BlockStatus = iota
	BlockError
)

// GetBlockFunc supplies upload data one block at a time. last reports how
// the previous block fared. Returning abort stops the session as
// device-requested; returning nil data with abort == false is the
// no-more-data sentinel. When a block fails to store, the function is
// invoked one final time with BlockError and its return values are ignored,
// so device code can release resources held for the block.
type GetBlockFunc func(last BlockStatus) (data []byte, abort bool)

// DoneFunc is the terminal callback of a session. It fires exactly once.
type DoneFunc func(result Result, bytesSent int64)

type session struct {
	name     string
	index    int
	bytes    int64
	last     BlockStatus
	getBlock GetBlockFunc
	done     DoneFunc
}

// Uploader is the single-active-session upload state machine.
type Uploader struct {
	store   Store
	current *session
	logger  log.Log
}

func NewUploader(store Store, logger log.Log) *Uploader {
	return &Uploader{store: store, logger: logger}
}

func (u *Uploader) Active() bool {
	return u.current != nil
}

// Start begins a block-by-block session. It fails with ErrBusy while another
// session is active; after a session reaches a terminal state a new one may
// start.
func (u *Uploader) Start(name string, getBlock GetBlockFunc, done DoneFunc) error {
	if u.store == nil {
		return ErrNoStore
	}
	if name == "" || getBlock == nil {
		return ErrBadInput
	}
	if u.current != nil {
		return ErrBusy
	}
	u.current = &session{
		name:     name,
		getBlock: getBlock,
		done:     done,
	}
	u.logger.Info("upload session started", log.String("blob", name))
	return nil
}

// StartBuffer uploads an in-memory buffer, chunked into blockSize pieces,
// through the block API.
func (u *Uploader) StartBuffer(name string, data []byte, blockSize int, done DoneFunc) error {
	if blockSize <= 0 || len(data) == 0 {
		return ErrBadInput
	}
	offset := 0
	getBlock := func(last BlockStatus) ([]byte, bool) {
		if last != BlockOK || offset >= len(data) {
			return nil, false
		}
		end := offset + blockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[offset:end]
		offset = end
		return block, false
	}
	return u.Start(name, getBlock, done)
}

// Advance moves the active session forward by one block. No-op when idle.
func (u *Uploader) Advance() {
	s := u.current
	if s == nil {
		return
	}

	data, abort := s.getBlock(s.last)
	if abort {
		u.finish(ResultAborted, false)
		return
	}
	if data == nil {
		// No-more-data sentinel: finalize.
		if err := u.store.Commit(s.name, true); err != nil {
			u.logger.Error("upload commit failed", log.String("blob", s.name), log.Error(err))
			u.finishWithoutCommit(ResultFailed)
			return
		}
		u.finishWithoutCommit(ResultCompleted)
		return
	}

	sum := xxhash.Sum64(data)
	if err := u.store.PutBlock(s.name, s.index, data, sum); err != nil {
		u.logger.Error("block upload failed",
			log.String("blob", s.name),
			log.Int("block", s.index),
			log.Error(err))
		// Final notification so device code can release block resources.
		s.getBlock(BlockError)
		u.finish(ResultFailed, false)
		return
	}
	s.index++
	s.bytes += int64(len(data))
	s.last = BlockOK
}

// Cancel aborts the active session, if any. Used on teardown.
func (u *Uploader) Cancel() {
	if u.current == nil {
		return
	}
	u.finish(ResultAborted, false)
}

func (u *Uploader) finish(result Result, ok bool) {
	s := u.current
	if err := u.store.Commit(s.name, ok); err != nil {
		u.logger.Warn("finalize failed", log.String("blob", s.name), log.Error(err))
	}
	u.finishWithoutCommit(result)
}

func (u *Uploader) finishWithoutCommit(result Result) {
	s := u.current
	u.current = nil
	u.logger.Info("upload session finished",
		log.String("blob", s.name),
		log.String("result", result.String()),
		log.Int64("bytes", s.bytes))
	if s.done != nil {
		s.done(result, s.bytes)
	}
}

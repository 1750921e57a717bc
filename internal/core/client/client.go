// Package client implements the device-side hub client engine. The client
// owns no thread and performs no I/O of its own: the owning application
// constructs it around a transport, registers callbacks, submits work, and
// calls DoWork repeatedly. Every callback fires synchronously inside DoWork
// on the caller's thread.
//
// A Client is meant for exclusive use from one logical thread of control.
// Concurrent calls on the same handle are undefined behavior, as is
// destroying the handle from inside one of its own callbacks; Destroy called
// from a callback is deferred to the next DoWork boundary as a best-effort
// defense.
package client

import (
	"fmt"
	"time"

	"github.com/hublink/hublink/internal/core/blob"
	"github.com/hublink/hublink/internal/core/config"
	"github.com/hublink/hublink/internal/core/connection"
	"github.com/hublink/hublink/internal/core/methods"
	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/outbox"
	"github.com/hublink/hublink/internal/core/retry"
	"github.com/hublink/hublink/internal/core/transport"
	"github.com/hublink/hublink/internal/core/twin"
)

// MessageCallback handles an inbound cloud-to-device message and returns its
// disposition.
type MessageCallback func(msg *transport.Message, userCtx any) transport.Disposition

// ConnectionCallback observes connection status transitions.
type ConnectionCallback func(status connection.Status, reason transport.Reason, userCtx any)

// SendStatus reports whether the client still holds unresolved outbound work.
type SendStatus int

const (
	SendStatusIdle SendStatus = iota
	SendStatusBusy
)

// Config parameterizes a Client. Zero values fall back to the defaults of
// DefaultConfig.
type Config struct {
	Device config.Device

	// Retry governs automatic reconnection.
	Retry retry.Config

	// CommTimeout bounds how long an enqueued event message may wait for
	// delivery before its callback fires with a timeout. Zero disables
	// expiry.
	CommTimeout time.Duration

	// MethodTimeout bounds unanswered async method invocations. Zero
	// disables the deadline.
	MethodTimeout time.Duration

	KeepAlive        time.Duration
	SASTokenLifetime time.Duration

	// BlobStore is the storage transport for uploads. Upload operations
	// fail with ErrNotSupported when nil.
	BlobStore blob.Store
	// BlockSize chunks buffer uploads.
	BlockSize int

	LogLevel log.Level

	// Clock overrides the time source, for deterministic tests.
	Clock func() time.Time
}

// DefaultConfig returns the stock configuration: exponential backoff with
// jitter and no retry ceiling, no communication timeout, 256 KiB upload
// blocks.
func DefaultConfig() Config {
	return Config{
		Retry:            retry.DefaultConfig(),
		KeepAlive:        4 * time.Minute,
		SASTokenLifetime: time.Hour,
		BlockSize:        256 * 1024,
		LogLevel:         log.LevelInfo,
	}
}

// Client is the root handle. See the package comment for the threading
// contract.
type Client struct {
	cfg    Config
	tr     transport.Transport
	logger log.Log
	now    func() time.Time

	conn     *connection.Tracker
	outbox   *outbox.Queue
	twin     *twin.Synchronizer
	methods  *methods.Dispatcher
	uploader *blob.Uploader

	msgCB  MessageCallback
	msgCtx any

	lastReceive time.Time

	working          bool
	destroyed        bool
	destroyRequested bool
}

// New creates a client over the supplied transport. The transport is used
// exclusively by this handle from now on.
func New(cfg Config, tr transport.Transport) (*Client, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidArgument)
	}
	if err := cfg.Device.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 256 * 1024
	}

	logger := log.New(cfg.LogLevel).With(
		log.String("component", "hublink"),
		log.String("device_id", cfg.Device.DeviceID),
	)

	c := &Client{
		cfg:    cfg,
		tr:     tr,
		logger: logger,
		now:    cfg.Clock,
	}
	c.conn = connection.NewTracker(retry.NewEngine(cfg.Retry), c.now, logger)
	c.outbox = outbox.NewQueue(c.now)
	c.twin = twin.NewSynchronizer()
	c.methods = methods.NewDispatcher(c.now)
	c.methods.SetTimeout(cfg.MethodTimeout)
	c.uploader = blob.NewUploader(cfg.BlobStore, logger)

	return c, nil
}

// NewFromConnectionString creates a client from the standard semicolon
// connection string format.
func NewFromConnectionString(cs string, tr transport.Transport) (*Client, error) {
	dev, err := config.ParseConnectionString(cs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	cfg := DefaultConfig()
	cfg.Device = dev
	return New(cfg, tr)
}

// NewFromDeviceAuth creates a client around an external device-auth module.
func NewFromDeviceAuth(hubURI, deviceID string, auth config.TokenProvider, tr transport.Transport) (*Client, error) {
	dev, err := config.FromDeviceAuth(hubURI, deviceID, auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	cfg := DefaultConfig()
	cfg.Device = dev
	return New(cfg, tr)
}

// Destroy tears the handle down. Pending event messages and reported-state
// submissions resolve with their destroyed/no-response outcomes, an active
// upload session aborts, and the transport is disconnected. Calling Destroy
// from inside a callback defers the teardown to the next DoWork boundary.
func (c *Client) Destroy() {
	if c.destroyed {
		return
	}
	if c.working {
		c.destroyRequested = true
		return
	}
	c.release()
}

func (c *Client) release() {
	c.destroyed = true
	c.uploader.Cancel()
	c.outbox.FailAll(outbox.ResultDestroyed)
	c.twin.FailAll()
	_ = c.tr.Disconnect()
	c.logger.Info("client destroyed")
}

// SendEventAsync enqueues a device-to-cloud event message. The confirmation
// callback fires exactly once with the terminal outcome; enqueue order is
// preserved end to end.
func (c *Client) SendEventAsync(msg *transport.Message, cb outbox.Callback, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if msg == nil || len(msg.Payload) == 0 {
		return fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	return c.outbox.Enqueue(msg, cb, userCtx)
}

// SendStatus reports whether outbound work is pending.
func (c *Client) SendStatus() (SendStatus, error) {
	if c.destroyed {
		return SendStatusIdle, ErrDestroyed
	}
	if !c.outbox.Empty() || c.twin.PendingReported() > 0 {
		return SendStatusBusy, nil
	}
	return SendStatusIdle, nil
}

// LastReceiveTime returns when the last cloud-to-device message arrived.
func (c *Client) LastReceiveTime() (time.Time, error) {
	if c.destroyed {
		return time.Time{}, ErrDestroyed
	}
	if c.lastReceive.IsZero() {
		return time.Time{}, ErrNoMessageReceived
	}
	return c.lastReceive, nil
}

// SetMessageCallback registers the cloud-to-device message handler. Passing
// nil unregisters it; unhandled messages are abandoned.
func (c *Client) SetMessageCallback(cb MessageCallback, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.msgCB = cb
	c.msgCtx = userCtx
	return nil
}

// SetConnectionStatusCallback registers the connection status observer.
func (c *Client) SetConnectionStatusCallback(cb ConnectionCallback, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if cb == nil {
		c.conn.SetCallback(nil)
		return nil
	}
	c.conn.SetCallback(func(status connection.Status, reason transport.Reason) {
		cb(status, reason, userCtx)
	})
	return nil
}

// SetRetryPolicy replaces the reconnect policy.
func (c *Client) SetRetryPolicy(cfg retry.Config) error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.conn.SetRetry(retry.NewEngine(cfg))
	return nil
}

// RetryPolicy returns the active reconnect policy.
func (c *Client) RetryPolicy() (retry.Config, error) {
	if c.destroyed {
		return retry.Config{}, ErrDestroyed
	}
	return c.conn.RetryConfig(), nil
}

// ConnectionState exposes the tracker state, mainly for diagnostics.
func (c *Client) ConnectionState() connection.State {
	return c.conn.State()
}

// SetDeviceTwinCallback registers the desired-properties observer.
func (c *Client) SetDeviceTwinCallback(cb twin.PatchCallback, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.twin.SetPatchCallback(cb, userCtx)
	return nil
}

// SendReportedState queues a reported-properties document. The callback
// fires exactly once with the hub's status for this specific submission.
func (c *Client) SendReportedState(payload []byte, cb twin.ReportedCallback, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty reported state", ErrInvalidArgument)
	}
	c.twin.SubmitReported(payload, cb, userCtx)
	return nil
}

// SetDeviceMethodCallback registers the synchronous method handler,
// superseding any async registration.
func (c *Client) SetDeviceMethodCallback(h methods.SyncHandler, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.methods.SetSync(h, userCtx)
	return nil
}

// SetDeviceMethodCallbackAsync registers the asynchronous method handler,
// superseding any sync registration. The handler must complete each accepted
// invocation through DeviceMethodResponse.
func (c *Client) SetDeviceMethodCallbackAsync(h methods.AsyncHandler, userCtx any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	c.methods.SetAsync(h, userCtx)
	return nil
}

// DeviceMethodResponse completes an async method invocation. Responding to
// an unknown or already-answered token fails with methods.ErrUnknownToken.
func (c *Client) DeviceMethodResponse(token string, status int, payload []byte) error {
	if c.destroyed {
		return ErrDestroyed
	}
	return c.methods.Respond(token, status, payload, c.tr.RespondMethod)
}

// UploadBlocksAsync starts a block-by-block blob upload. One session may be
// active at a time; starting another fails with ErrAlreadyInProgress.
func (c *Client) UploadBlocksAsync(destination string, getBlock blob.GetBlockFunc, done blob.DoneFunc) error {
	if c.destroyed {
		return ErrDestroyed
	}
	return c.mapUploadErr(c.uploader.Start(destination, getBlock, done))
}

// UploadToBlobAsync uploads an in-memory buffer through the block API.
func (c *Client) UploadToBlobAsync(destination string, data []byte, done blob.DoneFunc) error {
	if c.destroyed {
		return ErrDestroyed
	}
	return c.mapUploadErr(c.uploader.StartBuffer(destination, data, c.cfg.BlockSize, done))
}

func (c *Client) mapUploadErr(err error) error {
	switch {
	case err == nil:
		return nil
	case err == blob.ErrBusy:
		return fmt.Errorf("%w: upload session active", ErrAlreadyInProgress)
	case err == blob.ErrNoStore:
		return fmt.Errorf("%w: no blob store configured", ErrNotSupported)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
}

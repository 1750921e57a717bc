package client

import (
	"context"

	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/transport"
)

// DoWork advances the client by one scheduler tick. All network interaction
// and all callback invocation happens synchronously inside this call, in a
// fixed order: inbound events, connection state, outbound messages, reported
// state, blob upload. No step blocks; the owner decides how often to call.
func (c *Client) DoWork() {
	if c.destroyed {
		return
	}
	if c.destroyRequested {
		// Teardown requested from inside a callback on a prior tick.
		c.release()
		return
	}

	c.working = true
	defer func() { c.working = false }()

	// 1. Inbound network activity.
	for _, ev := range c.tr.Poll() {
		c.dispatch(ev)
		if c.destroyRequested {
			return
		}
	}
	for _, token := range c.methods.SweepExpired() {
		c.logger.Warn("method invocation timed out", log.String("token", token))
	}

	// 2. Connection state and retry policy.
	c.conn.Tick(c.connect)
	if c.destroyRequested {
		return
	}

	// 3. Outbound message queue.
	c.outbox.ExpireStale(c.cfg.CommTimeout)
	if c.conn.Authenticated() {
		c.outbox.Drain(c.tr.Send)

		// 4. Pending reported-state submissions.
		c.twin.Drain(c.tr.SendReported)
	}
	if c.destroyRequested {
		return
	}

	// 5. Active blob upload session.
	c.uploader.Advance()
}

func (c *Client) connect() error {
	return c.tr.Connect(context.Background(), c.cfg.Device)
}

func (c *Client) dispatch(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.ConnectedEvent:
		c.conn.HandleConnected()
	case transport.DisconnectedEvent:
		c.conn.HandleDisconnected(ev.Reason)
	case transport.SendAckEvent:
		c.outbox.HandleAck(ev.Outcome)
	case transport.TwinPatchEvent:
		c.twin.ApplyPatch(ev.Version, ev.Payload)
	case transport.ReportedAckEvent:
		c.twin.HandleAck(ev.StatusCode, ev.Version)
	case transport.MethodRequestEvent:
		if err := c.methods.Dispatch(ev.Token, ev.Name, ev.Payload, c.tr.RespondMethod); err != nil {
			c.logger.Warn("method dispatch failed",
				log.String("method", ev.Name),
				log.Error(err))
		}
	case transport.MessageEvent:
		c.lastReceive = c.now()
		disposition := transport.DispositionAbandoned
		if c.msgCB != nil {
			disposition = c.msgCB(ev.Message, c.msgCtx)
		}
		_ = c.tr.SettleMessage(ev.Message.ID, disposition)
	}
}

// Package websocket is a reference Transport over a WebSocket connection.
// JSON frames travel one per WebSocket message. Wire-level concerns stay in
// this package; the client core only ever sees transport.Event values.
package websocket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hublink/hublink/internal/core/config"
	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/transport"
)

var _ transport.Transport = (*Transport)(nil)

const defaultEventBuffer = 256

// Config tunes the WebSocket transport.
type Config struct {
	// Scheme is "wss" unless overridden (tests use "ws").
	Scheme           string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// TokenLifetime is used when minting tokens through a device-auth
	// module.
	TokenLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{
		Scheme:           "wss",
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     30 * time.Second,
		TokenLifetime:    time.Hour,
	}
}

// Transport is a client-side WebSocket transport.
type Transport struct {
	cfg    Config
	logger log.Log

	conn   *websocket.Conn
	events chan transport.Event
}

func New(cfg Config, logger log.Log) *Transport {
	if cfg.Scheme == "" {
		cfg.Scheme = "wss"
	}
	return &Transport{
		cfg:    cfg,
		logger: logger.With(log.String("transport", "websocket")),
	}
}

func (t *Transport) Connect(ctx context.Context, dev config.Device) error {
	if t.conn != nil {
		return transport.ErrAlreadyConnected
	}

	u := url.URL{
		Scheme: t.cfg.Scheme,
		Host:   dev.Endpoint(),
		Path:   "/devices/" + dev.DeviceID,
	}
	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrConnectFailed, err)
	}

	token, err := t.credential(dev)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", transport.ErrConnectFailed, err)
	}
	auth := &transport.Frame{
		Kind:    transport.FrameAuth,
		ID:      dev.DeviceID,
		Payload: []byte(token),
	}
	if err = t.writeFrame(conn, auth); err != nil {
		_ = conn.Close()
		return err
	}

	t.conn = conn
	t.events = make(chan transport.Event, defaultEventBuffer)
	go t.readPump(conn, t.events)
	t.logger.Info("connected", log.String("host", dev.Endpoint()))
	return nil
}

func (t *Transport) credential(dev config.Device) (string, error) {
	if dev.Auth != nil {
		return dev.Auth.Token(dev.Endpoint()+"/devices/"+dev.DeviceID, t.cfg.TokenLifetime)
	}
	if dev.SharedAccessSignature != "" {
		return dev.SharedAccessSignature, nil
	}
	return dev.SharedAccessKey, nil
}

// readPump turns inbound frames into events until the connection dies.
func (t *Transport) readPump(conn *websocket.Conn, events chan<- transport.Event) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case events <- transport.DisconnectedEvent{Reason: transport.ReasonCommunicationError}:
			default:
			}
			return
		}
		frame, err := transport.DecodeFrame(data)
		if err != nil {
			t.logger.Warn("dropping undecodable frame", log.Error(err))
			continue
		}
		if ev := transport.EventFromFrame(frame); ev != nil {
			select {
			case events <- ev:
			default:
				t.logger.Warn("event buffer full, dropping event")
			}
		}
	}
}

func (t *Transport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *Transport) Send(msg *transport.Message) error {
	return t.write(&transport.Frame{
		Kind:       transport.FrameEvent,
		ID:         msg.ID,
		Payload:    msg.Payload,
		Properties: msg.Properties,
	})
}

func (t *Transport) SendReported(payload []byte) error {
	return t.write(&transport.Frame{
		Kind:    transport.FrameReported,
		Payload: payload,
	})
}

func (t *Transport) RespondMethod(token string, status int, payload []byte) error {
	return t.write(&transport.Frame{
		Kind:    transport.FrameMethodResp,
		Token:   token,
		Status:  status,
		Payload: payload,
	})
}

func (t *Transport) SettleMessage(messageID string, d transport.Disposition) error {
	return t.write(&transport.Frame{
		Kind:   transport.FrameSettle,
		ID:     messageID,
		Status: int(d),
	})
}

func (t *Transport) Poll() []transport.Event {
	if t.events == nil {
		return nil
	}
	var out []transport.Event
	for {
		select {
		case ev := <-t.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (t *Transport) SetOption(name string, value any) error {
	switch name {
	case "ws_handshake_timeout":
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("option %q: want time.Duration", name)
		}
		t.cfg.HandshakeTimeout = d
		return nil
	case "sas_token_lifetime":
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("option %q: want time.Duration", name)
		}
		t.cfg.TokenLifetime = d
		return nil
	default:
		return transport.ErrOptionNotSupported
	}
}

func (t *Transport) write(f *transport.Frame) error {
	if t.conn == nil {
		return transport.ErrNotConnected
	}
	return t.writeFrame(t.conn, f)
}

func (t *Transport) writeFrame(conn *websocket.Conn, f *transport.Frame) error {
	data, err := transport.EncodeFrame(f)
	if err != nil {
		return err
	}
	if t.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Package quic is a reference Transport over a single QUIC bidirectional
// stream. Frames are the shared JSON envelope, length-prefixed with a 4-byte
// big-endian header.
package quic

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/hublink/hublink/internal/core/config"
	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/transport"
)

var _ transport.Transport = (*Transport)(nil)

const (
	defaultEventBuffer = 256
	maxFrameSize       = 4 * 1024 * 1024
)

// Config tunes the QUIC transport.
type Config struct {
	TLSConfig     *tls.Config
	KeepAlive     time.Duration
	TokenLifetime time.Duration
}

func DefaultConfig() Config {
	return Config{
		KeepAlive:     30 * time.Second,
		TokenLifetime: time.Hour,
	}
}

// Transport is a client-side QUIC transport.
type Transport struct {
	cfg    Config
	logger log.Log

	conn   *quic.Conn
	stream *quic.Stream
	events chan transport.Event
}

func New(cfg Config, logger log.Log) *Transport {
	return &Transport{
		cfg:    cfg,
		logger: logger.With(log.String("transport", "quic")),
	}
}

func (t *Transport) Connect(ctx context.Context, dev config.Device) error {
	if t.stream != nil {
		return transport.ErrAlreadyConnected
	}

	tlsConfig := t.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{"hublink"}

	quicConfig := &quic.Config{KeepAlivePeriod: t.cfg.KeepAlive}
	conn, err := quic.DialAddr(ctx, dev.Endpoint(), tlsConfig, quicConfig)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrConnectFailed, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream")
		return fmt.Errorf("%w: %v", transport.ErrConnectFailed, err)
	}

	token, err := t.credential(dev)
	if err != nil {
		_ = conn.CloseWithError(0, "credential")
		return fmt.Errorf("%w: %v", transport.ErrConnectFailed, err)
	}
	auth := &transport.Frame{
		Kind:    transport.FrameAuth,
		ID:      dev.DeviceID,
		Payload: []byte(token),
	}
	if err = writeFrame(stream, auth); err != nil {
		_ = conn.CloseWithError(0, "auth")
		return err
	}

	t.conn = conn
	t.stream = stream
	t.events = make(chan transport.Event, defaultEventBuffer)
	go t.readPump(stream, t.events)
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

func (t *Transport) readPump(stream *quic.Stream, events chan<- transport.Event) {
	for {
		frame, err := readFrame(stream)
		if err != nil {
			select {
			case events <- transport.DisconnectedEvent{Reason: transport.ReasonCommunicationError}:
			default:
			}
			return
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
	err := t.conn.CloseWithError(0, "client disconnect")
	t.conn = nil
	t.stream = nil
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
	case "keepalive":
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("option %q: want time.Duration", name)
		}
		t.cfg.KeepAlive = d
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
	if t.stream == nil {
		return transport.ErrNotConnected
	}
	return writeFrame(t.stream, f)
}

func writeFrame(w io.Writer, f *transport.Frame) error {
	data, err := transport.EncodeFrame(f)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err = w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readFrame(r io.Reader) (*transport.Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("frame size %d out of range", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return transport.DecodeFrame(data)
}

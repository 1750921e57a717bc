package transport

import (
	"encoding/json"
	"fmt"
)

// Frame is the JSON envelope shared by the reference transports. One frame
// travels per WebSocket message or length-prefixed QUIC record.
type Frame struct {
	Kind       string            `json:"kind"`
	ID         string            `json:"id,omitempty"`
	Token      string            `json:"token,omitempty"`
	Name       string            `json:"name,omitempty"`
	Version    int64             `json:"version,omitempty"`
	Status     int               `json:"status,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Payload    []byte            `json:"payload,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Frame kinds
const (
	FrameAuth        = "auth"
	FrameEvent       = "event"
	FrameEventAck    = "event_ack"
	FrameMessage     = "message"
	FrameSettle      = "settle"
	FrameTwinPatch   = "twin_patch"
	FrameReported    = "reported"
	FrameReportedAck = "reported_ack"
	FrameMethodReq   = "method_request"
	FrameMethodResp  = "method_response"
	FrameDisconnect  = "disconnect"
)

// EncodeFrame serializes a frame for the wire.
func EncodeFrame(f *Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a wire frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Kind == "" {
		return nil, fmt.Errorf("decode frame: missing kind")
	}
	return &f, nil
}

// ReasonFromWire maps the string form used on the wire back to a Reason.
func ReasonFromWire(s string) Reason {
	switch s {
	case "expired_token":
		return ReasonExpiredToken
	case "device_disabled":
		return ReasonDeviceDisabled
	case "bad_credential":
		return ReasonBadCredential
	case "no_network":
		return ReasonNoNetwork
	default:
		return ReasonCommunicationError
	}
}

// EventFromFrame translates an inbound frame into a core event. Frames that
// do not correspond to an event (unknown kinds) yield nil.
func EventFromFrame(f *Frame) Event {
	switch f.Kind {
	case FrameEventAck:
		outcome := Delivered
		switch f.Status {
		case 1:
			outcome = TransientFailure
		case 2:
			outcome = FatalFailure
		}
		return SendAckEvent{Outcome: outcome}
	case FrameMessage:
		return MessageEvent{Message: &Message{
			ID:         f.ID,
			Payload:    f.Payload,
			Properties: f.Properties,
		}}
	case FrameTwinPatch:
		return TwinPatchEvent{Version: f.Version, Payload: f.Payload}
	case FrameReportedAck:
		return ReportedAckEvent{StatusCode: f.Status, Version: f.Version}
	case FrameMethodReq:
		return MethodRequestEvent{Token: f.Token, Name: f.Name, Payload: f.Payload}
	case FrameDisconnect:
		return DisconnectedEvent{Reason: ReasonFromWire(f.Reason)}
	default:
		return nil
	}
}

package transport

import "github.com/google/uuid"

// Message is a device-to-cloud event or a cloud-to-device message. The
// payload is opaque to the core; properties travel as application metadata.
type Message struct {
	ID          string
	Payload     []byte
	ContentType string
	Properties  map[string]string
}

// NewMessage creates an outbound message with a fresh ID.
func NewMessage(payload []byte) *Message {
	return &Message{
		ID:      uuid.NewString(),
		Payload: payload,
	}
}

// SetProperty attaches an application property, allocating the map lazily.
func (m *Message) SetProperty(key, value string) {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
}

// Property returns an application property, or "" when absent.
func (m *Message) Property(key string) string {
	return m.Properties[key]
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	clone := &Message{
		ID:          m.ID,
		Payload:     append([]byte(nil), m.Payload...),
		ContentType: m.ContentType,
	}
	if m.Properties != nil {
		clone.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			clone.Properties[k] = v
		}
	}
	return clone
}

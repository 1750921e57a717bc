package transport

// Event is an inbound notification surfaced by Poll. The concrete types
// below form a closed set; the core dispatches on them with a type switch.
type Event interface {
	isEvent()
}

// ConnectedEvent reports that the transport (re)authenticated out of band,
// e.g. after an in-protocol session refresh.
type ConnectedEvent struct{}

// DisconnectedEvent reports a lost or rejected connection.
type DisconnectedEvent struct {
	Reason Reason
}

// SendAckEvent resolves the delivery attempt of the message currently in
// flight. Transports report attempts in submission order, so no message ID
// is carried; the core correlates by order.
type SendAckEvent struct {
	Outcome SendOutcome
}

// TwinPatchEvent carries a desired-properties patch pushed by the hub.
type TwinPatchEvent struct {
	Version int64
	Payload []byte
}

// ReportedAckEvent resolves the oldest in-flight reported-state submission.
// Correlation is by submission order; Version is the hub-assigned reported
// version, or a negative value when the submission failed.
type ReportedAckEvent struct {
	StatusCode int
	Version    int64
}

// MethodRequestEvent is an inbound method invocation. Token is the
// correlation token issued by the transport; the device must answer it
// exactly once.
type MethodRequestEvent struct {
	Token   string
	Name    string
	Payload []byte
}

// MessageEvent is an inbound cloud-to-device message.
type MessageEvent struct {
	Message *Message
}

func (ConnectedEvent) isEvent()     {}
func (DisconnectedEvent) isEvent()  {}
func (SendAckEvent) isEvent()       {}
func (TwinPatchEvent) isEvent()     {}
func (ReportedAckEvent) isEvent()   {}
func (MethodRequestEvent) isEvent() {}
func (MessageEvent) isEvent()       {}

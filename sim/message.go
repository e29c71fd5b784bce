package sim

import "fmt"

// BaseMessageName is the class every unrecognized message class name falls back to.
const BaseMessageName = "BaseMessage"

// Default presentation hints of BaseMessage.
const (
	DefaultMessageColor = "white"
	DefaultMessageSpeed = 1.0
)

// Message is a payload in transit between two endpoints. It exists only between
// send and delivery into a mailbox; the receiver gets a fresh value rebuilt from
// the wire fields.
type Message struct {
	Payload       any     // JSON-compatible value
	Color         string  // presentation hint
	Speed         float64 // presentation/logical hint, positive
	SentTimestamp float64 // virtual time at send
	SenderID      string
	ReceiverID    string
	ClassName     string // declared message variant name
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(%v) %s->%s @%.3f", m.ClassName, m.Payload, m.SenderID, m.ReceiverID, m.SentTimestamp)
}

// MessageLike is implemented by pre-built message values handed to Send; their
// payload, color and speed are reused instead of the class defaults.
type MessageLike interface {
	MessagePayload() (any, error)
	MessageColor() string
	MessageSpeed() float64
}

// TransportMeta describes a message leaving the core for the host: the four
// scalar wire fields plus addressing.
type TransportMeta struct {
	SenderID      string  `json:"sender"`
	ReceiverID    string  `json:"receiver"`
	PayloadJSON   string  `json:"payload"`
	Color         string  `json:"color"`
	Speed         float64 `json:"speed"`
	ClassName     string  `json:"class_name"`
	SentTimestamp float64 `json:"sent_timestamp"`
}

package websock

import "fmt"

// MessageType represents the type of a WebSocket message.
// See https://tools.ietf.org/html/rfc6455#section-5.6
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = iota + 1
	// MessageBinary is for binary messages like protobufs.
	MessageBinary
	// MessagePing is a ping control message. Write remembers the payload of
	// the most recent ping so Read can validate the answering pong.
	MessagePing
	// MessagePong is a pong control message whose payload matched the most
	// recently sent ping. Read never surfaces unsolicited pongs.
	MessagePong
	// MessageClose is a close control message. It is the last message a
	// session ever produces.
	MessageClose
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "MessageText"
	case MessageBinary:
		return "MessageBinary"
	case MessagePing:
		return "MessagePing"
	case MessagePong:
		return "MessagePong"
	case MessageClose:
		return "MessageClose"
	}
	return fmt.Sprintf("MessageType(%d)", int(t))
}

// Message is the result of a single Session.Read.
//
// MessageText and MessageBinary carry no payload of their own; the payload
// bytes have already been appended to the buffer passed to Read by the time
// the Message is returned.
type Message struct {
	Type MessageType

	// Close holds the peer's close reason.
	// It is only set when Type is MessageClose.
	Close CloseReason
}

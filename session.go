package websock

import (
	"bytes"
	"io"
)

// Session represents a WebSocket connection after a completed handshake.
//
// A Session must not be used concurrently: Read may itself write to the
// transport because pong and close echoes go through the same writer used
// by Write, and that writer is not safe for unsynchronized use. Callers
// that need a concurrent reader and writer must add their own mutual
// exclusion around the session. Splitting a Session into independent read
// and write halves is not provided.
//
// Any error returned from Read, Write or WriteFragmented is terminal: the
// session latches closed before the failing call returns and every
// subsequent call fails fast with ErrClosed.
//
// No liveness policy is built in. Ping cadence and pong deadlines are the
// caller's responsibility, on top of Write and Read.
type Session struct {
	inner *sessionEngine

	subprotocol string
}

const defaultMaxMessageSize = 32768

// SessionOptions configures a Session constructed over an already upgraded
// transport.
type SessionOptions struct {
	// MaxMessageSize bounds the total payload size of a single inbound
	// message, fragmented or not. When it is exceeded the session closes
	// with CloseMessageTooBig. Defaults to 32768.
	MaxMessageSize int64

	// Extension is the extension instance negotiated during the handshake.
	// Defaults to NoExtension.
	Extension Extension

	// Subprotocol is the subprotocol negotiated during the handshake.
	Subprotocol string
}

// NewSession wraps an already upgraded transport in a Session speaking for
// the given role. Dial and Accept call it after their handshakes; use it
// directly only when the upgrade was performed elsewhere.
//
// The session takes exclusive ownership of the transport. If the transport
// is an io.Closer it is closed when the session is closed.
func NewSession(transport io.ReadWriter, role Role, opts *SessionOptions) *Session {
	if opts == nil {
		opts = &SessionOptions{}
	}

	maxMessageSize := opts.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	return &Session{
		inner:       newSessionEngine(newFramedIO(transport, role, maxMessageSize), opts.Extension),
		subprotocol: opts.Subprotocol,
	}
}

// Subprotocol returns the negotiated subprotocol.
// An empty string means the default protocol.
func (s *Session) Subprotocol() string {
	return s.subprotocol
}

// Extension returns the negotiated extension instance.
func (s *Session) Extension() Extension {
	return s.inner.ext
}

// Read returns the next message from the peer.
//
// For MessageText and MessageBinary the payload has already been appended
// to buf when Read returns; buf must not be truncated between calls while a
// fragmented message is still arriving. Pings are answered with a matching
// pong before they are surfaced, unsolicited pongs are skipped entirely,
// and a close frame is echoed back before it is surfaced as MessageClose,
// so Read may produce wire traffic.
func (s *Session) Read(buf *bytes.Buffer) (Message, error) {
	return s.inner.read(buf)
}

// Write sends p as a single frame of the given type, which must be
// MessageText, MessageBinary or MessagePing.
//
// A ping payload may be at most 125 bytes. It is remembered, at its exact
// length, so the answering pong can be validated by Read.
func (s *Session) Write(p []byte, typ MessageType) error {
	return s.inner.write(p, typ)
}

// WriteFragmented sends p as one logical message split into consecutive
// frames of at most fragmentSize bytes each: the first frame carries the
// MessageText or MessageBinary opcode, every later frame is a continuation,
// and only the last one carries fin. Frames are written strictly in
// sequence so transport backpressure is respected. An empty p sends no
// frames at all.
func (s *Session) WriteFragmented(p []byte, typ MessageType, fragmentSize int) error {
	return s.inner.writeFragmented(p, typ, fragmentSize)
}

// Close sends a close frame with CloseNormalClosure and the given reason,
// then closes the transport. The session is unusable afterwards; Close is
// the only operation permitted on an already closed session and even then
// only to tear the transport down.
func (s *Session) Close(reason string) error {
	return s.inner.close(reason)
}

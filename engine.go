package websock

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

const controlDataMismatch = "unexpected control frame data"

// sessionEngine is the per-connection protocol state machine. It owns the
// frame codec and the negotiated extension exclusively and is driven
// through a Session.
//
// The engine has exactly two lifecycle states, open and closed, and closed
// is terminal: every transition into it completes before the triggering
// call returns, so the next call observes it without touching the
// transport.
type sessionEngine struct {
	framed *framedIO
	ext    Extension

	// pingPayload holds exactly the payload of the most recently sent, not
	// yet answered ping. Each new ping overwrites it and it is the only
	// thing an incoming pong is compared against.
	pingPayload []byte

	// closed latches true on the first terminal event: an explicit close,
	// a received close frame, a pong payload mismatch or a transport
	// failure.
	closed bool
}

func newSessionEngine(framed *framedIO, ext Extension) *sessionEngine {
	if ext == nil {
		ext = NoExtension{}
	}
	return &sessionEngine{
		framed:      framed,
		ext:         ext,
		pingPayload: make([]byte, 0, maxControlPayload),
	}
}

func (e *sessionEngine) read(buf *bytes.Buffer) (Message, error) {
	if e.closed {
		return Message{}, ErrClosed
	}

	for {
		it, err := e.framed.readNext(buf)
		if err != nil {
			e.closed = true

			var re *readError
			if errors.As(err, &re) && re.closeWith != nil {
				werr := e.framed.writeClose(*re.closeWith)
				if werr != nil {
					return Message{}, werr
				}
			}
			return Message{}, err
		}

		switch it.kind {
		case itemText:
			return Message{Type: MessageText}, nil

		case itemBinary:
			return Message{Type: MessageBinary}, nil

		case itemPing:
			err = e.echo(opPong, it.payload)
			if err != nil {
				return Message{}, err
			}
			return Message{Type: MessagePing}, nil

		case itemPong:
			if len(e.pingPayload) == 0 {
				// Unsolicited pong, skip it.
				continue
			}
			if bytes.Equal(e.pingPayload, it.payload) {
				return Message{Type: MessagePong}, nil
			}

			e.closed = true
			err = e.framed.writeClose(CloseReason{
				Code:   CloseProtocolError,
				Reason: controlDataMismatch,
			})
			if err != nil {
				return Message{}, err
			}
			return Message{}, ProtocolError(controlDataMismatch)

		case itemClose:
			err = e.echo(opClose, it.payload)
			if err != nil {
				return Message{}, err
			}
			e.closed = true
			return Message{Type: MessageClose, Close: it.reason}, nil
		}
	}
}

// echo writes a control frame from inside read: pings are answered with a
// pong and close frames are echoed back before either is surfaced. A failed
// echo is terminal.
func (e *sessionEngine) echo(op opcode, payload []byte) error {
	err := e.framed.write(op, true, payload)
	if err != nil {
		e.closed = true
		return err
	}
	return nil
}

func (e *sessionEngine) write(p []byte, typ MessageType) error {
	if e.closed {
		return ErrClosed
	}

	var op opcode
	switch typ {
	case MessageText:
		op = opText
	case MessageBinary:
		op = opBinary
	case MessagePing:
		if len(p) > maxControlPayload {
			return ProtocolError(fmt.Sprintf("ping payload of %v bytes exceeds the %v byte control frame limit", len(p), maxControlPayload))
		}
		e.pingPayload = append(e.pingPayload[:0], p...)
		op = opPing
	default:
		return xerrors.Errorf("unsupported message type for write: %v", typ)
	}

	err := e.framed.write(op, true, p)
	if err != nil {
		e.closed = true
		return err
	}
	return nil
}

func (e *sessionEngine) writeFragmented(p []byte, typ MessageType, fragmentSize int) error {
	if e.closed {
		return ErrClosed
	}
	if fragmentSize <= 0 {
		return xerrors.Errorf("fragment size must be positive but got %v", fragmentSize)
	}

	var op opcode
	switch typ {
	case MessageText:
		op = opText
	case MessageBinary:
		op = opBinary
	default:
		return xerrors.Errorf("unsupported message type for fragmented write: %v", typ)
	}

	// An empty message sends no frames at all. Otherwise exactly the last
	// chunk carries fin and only the first carries the data opcode.
	for len(p) > 0 {
		chunk := p
		if len(chunk) > fragmentSize {
			chunk = chunk[:fragmentSize]
		}
		p = p[len(chunk):]

		err := e.framed.write(op, len(p) == 0, chunk)
		if err != nil {
			e.closed = true
			return err
		}
		op = opContinuation
	}
	return nil
}

func (e *sessionEngine) close(reason string) error {
	werr := e.framed.writeClose(CloseReason{
		Code:   CloseNormalClosure,
		Reason: reason,
	})
	e.closed = true

	cerr := e.framed.close()
	if werr != nil {
		return werr
	}
	return cerr
}

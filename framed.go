package websock

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/xerrors"
)

// Role selects which side of the connection a session speaks for. It
// determines the masking direction of the frame codec: a client masks every
// outbound frame and requires unmasked inbound frames, a server the
// reverse. It is otherwise opaque to the session.
type Role int

// Role constants.
const (
	RoleClient Role = iota
	RoleServer
)

// itemKind classifies a decoded inbound unit.
type itemKind int

const (
	itemText itemKind = iota + 1
	itemBinary
	itemPing
	itemPong
	itemClose
)

// item is one decoded unit off the wire: a complete data message whose
// payload has already been appended to the read buffer, or a single
// control frame.
type item struct {
	kind itemKind

	// payload is the control frame payload. It aliases the codec's scratch
	// buffer and is only valid until the next readNext call.
	payload []byte

	// reason is set for itemClose.
	reason CloseReason
}

// framedIO converts transport bytes into decoded items and (opcode, fin,
// payload) triples into transport bytes. It owns the transport: frames are
// buffered off it on the way in and flushed to it one frame at a time on
// the way out.
type framedIO struct {
	br     *bufio.Reader
	bw     *bufio.Writer
	closer io.Closer // nil when the transport cannot be closed
	role   Role

	maxMessageSize int64

	// Inbound fragmentation state. msgStart is the read buffer offset at
	// which the in-flight message began.
	msgInFlight bool
	msgOpcode   opcode
	msgStart    int

	controlBuf [maxControlPayload]byte
	maskBuf    []byte
}

func newFramedIO(transport io.ReadWriter, role Role, maxMessageSize int64) *framedIO {
	f := &framedIO{
		br:             bufio.NewReader(transport),
		bw:             bufio.NewWriter(transport),
		role:           role,
		maxMessageSize: maxMessageSize,
		maskBuf:        make([]byte, 4096),
	}
	if c, ok := transport.(io.Closer); ok {
		f.closer = c
	}
	return f
}

// readNext decodes frames off the transport until a complete data message
// or a single control frame is available. Data frame payloads are appended
// to buf as they arrive; the message they form is complete only when
// readNext returns an itemText or itemBinary. Failures that the peer should
// be told about are returned as a *readError carrying the recommended close
// reason.
func (f *framedIO) readNext(buf *bytes.Buffer) (item, error) {
	for {
		h, err := readFrameHeader(f.br)
		if err != nil {
			return item{}, &readError{err: err}
		}

		if h.rsv1 || h.rsv2 || h.rsv3 {
			return item{}, failRead(CloseProtocolError, fmt.Sprintf("received header with unexpected rsv bits set: %v:%v:%v", h.rsv1, h.rsv2, h.rsv3))
		}
		if f.role == RoleServer && !h.masked {
			return item{}, failRead(CloseProtocolError, "received unmasked frame from client")
		}
		if f.role == RoleClient && h.masked {
			return item{}, failRead(CloseProtocolError, "received masked frame from server")
		}
		if h.payloadLength < 0 {
			return item{}, failRead(CloseProtocolError, fmt.Sprintf("received frame with negative payload length %v", h.payloadLength))
		}

		if h.opcode.control() {
			return f.readControl(h)
		}

		switch h.opcode {
		case opContinuation:
			if !f.msgInFlight {
				return item{}, failRead(CloseProtocolError, "received continuation frame without text or binary frame")
			}
		case opText, opBinary:
			if f.msgInFlight {
				return item{}, failRead(CloseProtocolError, "received new data frame before the previous one finished")
			}
			f.msgInFlight = true
			f.msgOpcode = h.opcode
			f.msgStart = buf.Len()
		default:
			return item{}, failRead(CloseProtocolError, fmt.Sprintf("received unknown opcode %v", int(h.opcode)))
		}

		if int64(buf.Len()-f.msgStart)+h.payloadLength > f.maxMessageSize {
			return item{}, failRead(CloseMessageTooBig, fmt.Sprintf("message exceeds the %v byte read limit", f.maxMessageSize))
		}

		err = f.readPayload(buf, h)
		if err != nil {
			return item{}, &readError{err: err}
		}

		if !h.fin {
			continue
		}

		f.msgInFlight = false
		if f.msgOpcode == opText {
			if !utf8.Valid(buf.Bytes()[f.msgStart:]) {
				return item{}, failRead(CloseInvalidFramePayloadData, "received text message that is not valid utf-8")
			}
			return item{kind: itemText}, nil
		}
		return item{kind: itemBinary}, nil
	}
}

func (f *framedIO) readControl(h header) (item, error) {
	if h.payloadLength > maxControlPayload {
		return item{}, failRead(CloseProtocolError, fmt.Sprintf("received control frame payload with invalid length %v", h.payloadLength))
	}
	if !h.fin {
		return item{}, failRead(CloseProtocolError, "received fragmented control frame")
	}

	p := f.controlBuf[:h.payloadLength]
	_, err := io.ReadFull(f.br, p)
	if err != nil {
		return item{}, &readError{err: err}
	}
	if h.masked {
		mask(h.maskKey, p)
	}

	switch h.opcode {
	case opPing:
		return item{kind: itemPing, payload: p}, nil
	case opPong:
		return item{kind: itemPong, payload: p}, nil
	}

	reason, err := parseClosePayload(p)
	if err != nil {
		return item{}, &readError{
			closeWith: &CloseReason{Code: CloseProtocolError, Reason: "invalid close payload"},
			err:       ProtocolError(err.Error()),
		}
	}
	return item{kind: itemClose, payload: p, reason: reason}, nil
}

func (f *framedIO) readPayload(buf *bytes.Buffer, h header) error {
	start := buf.Len()
	buf.Grow(int(h.payloadLength))

	_, err := io.CopyN(buf, f.br, h.payloadLength)
	if err != nil {
		return xerrors.Errorf("failed to read frame payload: %w", err)
	}

	if h.masked {
		mask(h.maskKey, buf.Bytes()[start:])
	}
	return nil
}

// write writes one frame to the transport. The header and payload are
// flushed together so a frame is always issued as a single unit.
// The caller's payload bytes are never modified; masking goes through the
// codec's scratch buffer.
func (f *framedIO) write(op opcode, fin bool, p []byte) error {
	h := header{
		fin:           fin,
		opcode:        op,
		payloadLength: int64(len(p)),
		masked:        f.role == RoleClient,
	}
	if h.masked {
		err := binary.Read(rand.Reader, binary.LittleEndian, &h.maskKey)
		if err != nil {
			return xerrors.Errorf("failed to generate masking key: %w", err)
		}
	}

	err := writeFrameHeader(h, f.bw)
	if err != nil {
		return err
	}

	if h.masked {
		key := h.maskKey
		for len(p) > 0 {
			n := copy(f.maskBuf, p)
			key = mask(key, f.maskBuf[:n])
			_, err = f.bw.Write(f.maskBuf[:n])
			if err != nil {
				return xerrors.Errorf("failed to write frame payload: %w", err)
			}
			p = p[n:]
		}
	} else {
		_, err = f.bw.Write(p)
		if err != nil {
			return xerrors.Errorf("failed to write frame payload: %w", err)
		}
	}

	return f.bw.Flush()
}

// writeClose validates and encodes reason and writes it as a close frame.
func (f *framedIO) writeClose(reason CloseReason) error {
	p, err := reason.bytes()
	if err != nil {
		return xerrors.Errorf("failed to marshal close frame: %w", err)
	}
	return f.write(opClose, true, p)
}

func (f *framedIO) close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

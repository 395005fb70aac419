package websock

import (
	"bufio"
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/websock-io/websock/internal/errd"
)

// opcode represents a WebSocket opcode.
type opcode int

// https://tools.ietf.org/html/rfc6455#section-11.8
const (
	opContinuation opcode = iota
	opText
	opBinary
	// 3 - 7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	opClose
	opPing
	opPong
	// 11-16 are reserved for further control frames.
)

func (o opcode) control() bool {
	switch o {
	case opClose, opPing, opPong:
		return true
	}
	return false
}

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5
const maxControlPayload = 125

// header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type header struct {
	fin    bool
	rsv1   bool
	rsv2   bool
	rsv3   bool
	opcode opcode

	payloadLength int64

	masked  bool
	maskKey uint32
}

// readFrameHeader reads a frame header from r.
func readFrameHeader(r *bufio.Reader) (_ header, err error) {
	defer errd.Wrap(&err, "failed to read frame header")

	b, err := r.ReadByte()
	if err != nil {
		return header{}, err
	}

	var h header
	h.fin = b&(1<<7) != 0
	h.rsv1 = b&(1<<6) != 0
	h.rsv2 = b&(1<<5) != 0
	h.rsv3 = b&(1<<4) != 0

	h.opcode = opcode(b & 0xf)

	b, err = r.ReadByte()
	if err != nil {
		return header{}, err
	}

	h.masked = b&(1<<7) != 0

	payloadLength := b &^ (1 << 7)
	switch {
	case payloadLength < 126:
		h.payloadLength = int64(payloadLength)
	case payloadLength == 126:
		var pl uint16
		err = binary.Read(r, binary.BigEndian, &pl)
		h.payloadLength = int64(pl)
	case payloadLength == 127:
		err = binary.Read(r, binary.BigEndian, &h.payloadLength)
	}
	if err != nil {
		return header{}, err
	}

	if h.masked {
		err = binary.Read(r, binary.LittleEndian, &h.maskKey)
		if err != nil {
			return header{}, err
		}
	}

	return h, nil
}

// writeFrameHeader writes the bytes of the header to w.
func writeFrameHeader(h header, w *bufio.Writer) (err error) {
	defer errd.Wrap(&err, "failed to write frame header")

	var b byte
	if h.fin {
		b |= 1 << 7
	}
	if h.rsv1 {
		b |= 1 << 6
	}
	if h.rsv2 {
		b |= 1 << 5
	}
	if h.rsv3 {
		b |= 1 << 4
	}
	b |= byte(h.opcode)

	err = w.WriteByte(b)
	if err != nil {
		return err
	}

	lengthByte := byte(0)
	if h.masked {
		lengthByte |= 1 << 7
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		lengthByte |= 127
	case h.payloadLength > 125:
		lengthByte |= 126
	case h.payloadLength >= 0:
		lengthByte |= byte(h.payloadLength)
	}
	err = w.WriteByte(lengthByte)
	if err != nil {
		return err
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		err = binary.Write(w, binary.BigEndian, h.payloadLength)
	case h.payloadLength > 125:
		err = binary.Write(w, binary.BigEndian, uint16(h.payloadLength))
	}
	if err != nil {
		return err
	}

	if h.masked {
		err = binary.Write(w, binary.LittleEndian, h.maskKey)
		if err != nil {
			return err
		}
	}

	return nil
}

// mask applies the WebSocket masking algorithm to b with the given key.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// The key is interpreted little endian, matching how it is written to the
// wire. The returned value is the key rotated so that masking can continue
// on the remainder of the frame.
//
// See https://github.com/golang/go/issues/31586
func mask(key uint32, b []byte) uint32 {
	if len(b) >= 8 {
		key64 := uint64(key)<<32 | uint64(key)
		for len(b) >= 8 {
			v := binary.LittleEndian.Uint64(b)
			binary.LittleEndian.PutUint64(b, v^key64)
			b = b[8:]
		}
	}

	for len(b) >= 4 {
		v := binary.LittleEndian.Uint32(b)
		binary.LittleEndian.PutUint32(b, v^key)
		b = b[4:]
	}

	for i := range b {
		b[i] ^= byte(key)
		key = bits.RotateLeft32(key, -8)
	}

	return key
}

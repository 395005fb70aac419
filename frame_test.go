package websock

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"math/bits"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/gobwas/ws"

	"github.com/websock-io/websock/internal/test/assert"
)

func TestHeader(t *testing.T) {
	t.Parallel()

	t.Run("lengths", func(t *testing.T) {
		t.Parallel()

		lengths := []int{
			124,
			125,
			126,
			127,

			65534,
			65535,
			65536,
			65537,
		}

		for _, n := range lengths {
			n := n
			t.Run(strconv.Itoa(n), func(t *testing.T) {
				t.Parallel()

				testHeader(t, header{
					payloadLength: int64(n),
				})
			})
		}
	})

	t.Run("fuzz", func(t *testing.T) {
		t.Parallel()

		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		randBool := func() bool {
			return r.Intn(2) == 0
		}

		for i := 0; i < 10000; i++ {
			h := header{
				fin:    randBool(),
				rsv1:   randBool(),
				rsv2:   randBool(),
				rsv3:   randBool(),
				opcode: opcode(r.Intn(16)),

				masked:        randBool(),
				maskKey:       r.Uint32(),
				payloadLength: r.Int63(),
			}
			if !h.masked {
				h.maskKey = 0
			}

			testHeader(t, h)
		}
	})
}

func testHeader(t *testing.T, h header) {
	t.Helper()

	b := &bytes.Buffer{}
	w := bufio.NewWriter(b)
	r := bufio.NewReader(b)

	err := writeFrameHeader(h, w)
	assert.Success(t, err)

	err = w.Flush()
	assert.Success(t, err)

	h2, err := readFrameHeader(r)
	assert.Success(t, err)

	assert.Equal(t, "read header", h, h2)
}

// TestHeaderGobwas cross-validates the header codec against gobwas/ws in
// both directions.
func TestHeaderGobwas(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	randBool := func() bool {
		return r.Intn(2) == 0
	}

	// Data frames only: gobwas validates control frame rules on read.
	for i := 0; i < 1000; i++ {
		h := header{
			fin:           randBool(),
			opcode:        opcode(r.Intn(3)),
			masked:        randBool(),
			payloadLength: r.Int63(),
		}
		if h.masked {
			h.maskKey = r.Uint32()
		}

		b := &bytes.Buffer{}
		w := bufio.NewWriter(b)
		err := writeFrameHeader(h, w)
		assert.Success(t, err)
		assert.Success(t, w.Flush())

		h2, err := ws.ReadHeader(b)
		assert.Success(t, err)

		assert.Equal(t, "fin", h.fin, h2.Fin)
		assert.Equal(t, "opcode", ws.OpCode(h.opcode), h2.OpCode)
		assert.Equal(t, "masked", h.masked, h2.Masked)
		assert.Equal(t, "length", h.payloadLength, h2.Length)
		if h.masked {
			assert.Equal(t, "mask key", h.maskKey, binary.LittleEndian.Uint32(h2.Mask[:]))
		}

		h3 := ws.Header{
			Fin:    h.fin,
			OpCode: ws.OpCode(h.opcode),
			Masked: h.masked,
			Length: h.payloadLength,
		}
		if h.masked {
			binary.LittleEndian.PutUint32(h3.Mask[:], h.maskKey)
		}

		b.Reset()
		err = ws.WriteHeader(b, h3)
		assert.Success(t, err)

		h4, err := readFrameHeader(bufio.NewReader(b))
		assert.Success(t, err)
		assert.Equal(t, "header", h, h4)
	}
}

func TestMask(t *testing.T) {
	t.Parallel()

	key := []byte{0xa, 0xb, 0xc, 0xff}
	key32 := binary.LittleEndian.Uint32(key)
	p := []byte{0xa, 0xb, 0xc, 0xf2, 0xc}
	gotKey32 := mask(key32, p)

	expP := []byte{0, 0, 0, 0x0d, 0x6}
	assert.Equal(t, "p", expP, p)

	expKey32 := bits.RotateLeft32(key32, -8)
	assert.Equal(t, "key32", expKey32, gotKey32)
}

// TestMaskGobwas cross-validates the masking algorithm against
// gobwas/ws.Cipher on random payloads of every interesting size.
func TestMaskGobwas(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, n := range []int{0, 1, 2, 3, 4, 5, 7, 8, 9, 16, 125, 4096, 4099} {
		n := n
		var key [4]byte
		r.Read(key[:])
		p := make([]byte, n)
		r.Read(p)

		t.Run(strconv.Itoa(n), func(t *testing.T) {
			t.Parallel()

			exp := make([]byte, n)
			copy(exp, p)
			ws.Cipher(exp, key, 0)

			mask(binary.LittleEndian.Uint32(key[:]), p)
			assert.Equal(t, "masked payload", exp, p)
		})
	}
}

// The rotated key returned by mask must continue a frame correctly across
// arbitrary split points.
func TestMaskContinuation(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	var key [4]byte
	r.Read(key[:])
	key32 := binary.LittleEndian.Uint32(key[:])

	p := make([]byte, 1000)
	r.Read(p)

	exp := make([]byte, len(p))
	copy(exp, p)
	ws.Cipher(exp, key, 0)

	for _, split := range []int{1, 2, 3, 5, 100, 999} {
		got := make([]byte, len(p))
		copy(got, p)

		k := mask(key32, got[:split])
		mask(k, got[split:])
		assert.Equal(t, "masked payload", exp, got)
	}
}

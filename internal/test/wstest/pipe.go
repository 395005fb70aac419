// Package wstest provides an in-memory transport for session tests.
package wstest

import (
	"bytes"
	"io"
	"sync"
)

// Pipe returns both ends of a buffered in-memory full duplex connection.
//
// Unlike net.Pipe, writes never block. That keeps single goroutine tests of
// read paths that themselves produce wire traffic (pong and close echoes)
// free of deadlocks: the echo completes immediately and the test inspects
// it from the other end afterwards.
func Pipe() (c1, c2 io.ReadWriteCloser) {
	a := newBuffer()
	b := newBuffer()
	return &end{r: a, w: b}, &end{r: b, w: a}
}

type buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   bytes.Buffer
	closed bool
}

func newBuffer() *buffer {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.data.Len() == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.data.Len() == 0 {
		return 0, io.EOF
	}
	return b.data.Read(p)
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := b.data.Write(p)
	b.cond.Broadcast()
	return n, err
}

func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

type end struct {
	r, w *buffer
}

func (e *end) Read(p []byte) (int, error)  { return e.r.Read(p) }
func (e *end) Write(p []byte) (int, error) { return e.w.Write(p) }

// Close closes both directions: subsequent writes from either end fail and
// reads drain what is buffered before returning io.EOF.
func (e *end) Close() error {
	e.r.close()
	e.w.close()
	return nil
}

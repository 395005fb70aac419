// Package wspb provides helpers for reading and writing protobuf messages.
package wspb

import (
	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"github.com/websock-io/websock"
	"github.com/websock-io/websock/internal/bpool"
)

// Read reads the next binary message from c and unmarshals it into v.
// Control messages are handled along the way: pings are answered by the
// session and pongs are skipped. A close from the peer is returned as an
// error carrying the peer's reason.
func Read(c *websock.Session, v proto.Message) error {
	err := read(c, v)
	if err != nil {
		return xerrors.Errorf("failed to read protobuf: %w", err)
	}
	return nil
}

func read(c *websock.Session, v proto.Message) error {
	b := bpool.Get()
	defer bpool.Put(b)

	for {
		msg, err := c.Read(b)
		if err != nil {
			return err
		}

		switch msg.Type {
		case websock.MessagePing, websock.MessagePong:
			continue
		case websock.MessageClose:
			return xerrors.Errorf("connection closed with %v", msg.Close)
		case websock.MessageBinary:
			return proto.Unmarshal(b.Bytes(), v)
		default:
			return xerrors.Errorf("unexpected message type for protobuf (expected %v): %v", websock.MessageBinary, msg.Type)
		}
	}
}

// Write marshals v as protobuf and writes it to c as a single binary
// message.
func Write(c *websock.Session, v proto.Message) error {
	err := write(c, v)
	if err != nil {
		return xerrors.Errorf("failed to write protobuf: %w", err)
	}
	return nil
}

func write(c *websock.Session, v proto.Message) error {
	p, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	return c.Write(p, websock.MessageBinary)
}

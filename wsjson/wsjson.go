// Package wsjson provides helpers for reading and writing JSON messages.
package wsjson

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/websock-io/websock"
	"github.com/websock-io/websock/internal/bpool"
)

// Read reads the next text message from c and unmarshals it into v.
// Control messages are handled along the way: pings are answered by the
// session and pongs are skipped. A close from the peer is returned as an
// error carrying the peer's reason.
func Read(c *websock.Session, v interface{}) error {
	err := read(c, v)
	if err != nil {
		return xerrors.Errorf("failed to read json: %w", err)
	}
	return nil
}

func read(c *websock.Session, v interface{}) error {
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
		case websock.MessageText:
			return json.Unmarshal(b.Bytes(), v)
		default:
			return xerrors.Errorf("unexpected message type for json (expected %v): %v", websock.MessageText, msg.Type)
		}
	}
}

// Write marshals v as JSON and writes it to c as a single text message.
func Write(c *websock.Session, v interface{}) error {
	err := write(c, v)
	if err != nil {
		return xerrors.Errorf("failed to write json: %w", err)
	}
	return nil
}

func write(c *websock.Session, v interface{}) error {
	b := bpool.Get()
	defer bpool.Put(b)

	e := json.NewEncoder(b)
	err := e.Encode(v)
	if err != nil {
		return xerrors.Errorf("failed to encode json: %w", err)
	}

	return c.Write(b.Bytes(), websock.MessageText)
}

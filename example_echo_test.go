package websock_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"golang.org/x/xerrors"

	"github.com/websock-io/websock"
	"github.com/websock-io/websock/wsjson"
)

// Example_echo starts a WebSocket echo server, dials it and then sends 5
// different messages, printing each echo.
func Example_echo() {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	s := http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := echoServer(w, r)
			if err != nil {
				log.Printf("echo server: %v", err)
			}
		}),
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 15,
	}
	defer s.Close()
	go s.Serve(l)

	err = client("ws://" + l.Addr().String())
	if err != nil {
		log.Fatal(err)
	}

	// Output:
	// received: map[i:0]
	// received: map[i:1]
	// received: map[i:2]
	// received: map[i:3]
	// received: map[i:4]
}

// echoServer is the WebSocket echo server implementation.
// It ensures the client speaks the echo subprotocol and only allows one
// message every 100ms with a 10 message burst.
func echoServer(w http.ResponseWriter, r *http.Request) error {
	c, err := websock.Accept(w, r, &websock.AcceptOptions{
		Subprotocols: []string{"echo"},
	})
	if err != nil {
		return err
	}
	defer c.Close("")

	if c.Subprotocol() != "echo" {
		c.Close("client must speak the echo subprotocol")
		return xerrors.New("client does not speak echo subprotocol")
	}

	l := rate.NewLimiter(rate.Every(time.Millisecond*100), 10)
	buf := &bytes.Buffer{}
	for {
		err = l.Wait(r.Context())
		if err != nil {
			return err
		}

		buf.Reset()
		msg, err := c.Read(buf)
		if err != nil {
			return err
		}

		switch msg.Type {
		case websock.MessageText, websock.MessageBinary:
			err = c.Write(buf.Bytes(), msg.Type)
			if err != nil {
				return xerrors.Errorf("failed to echo message: %w", err)
			}
		case websock.MessageClose:
			return nil
		}
	}
}

// client dials the WebSocket echo server and then sends 5 different
// messages, printing each received echo.
func client(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, _, err := websock.Dial(ctx, url, &websock.DialOptions{
		Subprotocols: []string{"echo"},
	})
	if err != nil {
		return err
	}
	defer c.Close("")

	for i := 0; i < 5; i++ {
		err = wsjson.Write(c, map[string]int{
			"i": i,
		})
		if err != nil {
			return err
		}

		var v map[string]int
		err = wsjson.Read(c, &v)
		if err != nil {
			return err
		}
		fmt.Printf("received: %v\n", v)
	}

	return c.Close("")
}

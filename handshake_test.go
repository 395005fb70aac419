package websock_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/websock-io/websock"
	"github.com/websock-io/websock/internal/test/assert"
)

// echoHandler upgrades the request and echoes data messages back until the
// client closes.
func echoHandler(w http.ResponseWriter, r *http.Request, opts *websock.AcceptOptions) {
	c, err := websock.Accept(w, r, opts)
	if err != nil {
		return
	}
	defer c.Close("")

	buf := &bytes.Buffer{}
	for {
		buf.Reset()
		msg, err := c.Read(buf)
		if err != nil {
			return
		}
		switch msg.Type {
		case websock.MessageText, websock.MessageBinary:
			err = c.Write(buf.Bytes(), msg.Type)
			if err != nil {
				return
			}
		case websock.MessageClose:
			return
		}
	}
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	t.Run("echo", func(t *testing.T) {
		t.Parallel()

		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			echoHandler(w, r, &websock.AcceptOptions{
				Subprotocols: []string{"echo"},
			})
		}))
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		c, resp, err := websock.Dial(ctx, wsURL(s), &websock.DialOptions{
			Subprotocols: []string{"echo"},
		})
		assert.Success(t, err)
		assert.Equal(t, "handshake status", http.StatusSwitchingProtocols, resp.StatusCode)
		assert.Equal(t, "subprotocol", "echo", c.Subprotocol())
		assert.Equal(t, "extension", websock.NoExtension{}, c.Extension())

		buf := &bytes.Buffer{}

		err = c.Write([]byte("hello"), websock.MessageText)
		assert.Success(t, err)
		msg, err := c.Read(buf)
		assert.Success(t, err)
		assert.Equal(t, "echoed type", websock.MessageText, msg.Type)
		assert.Equal(t, "echoed payload", "hello", buf.String())

		err = c.Write([]byte{0xde, 0xad}, websock.MessagePing)
		assert.Success(t, err)
		buf.Reset()
		msg, err = c.Read(buf)
		assert.Success(t, err)
		assert.Equal(t, "ping answer", websock.MessagePong, msg.Type)

		err = c.Write([]byte{1, 2, 3, 4}, websock.MessageBinary)
		assert.Success(t, err)
		buf.Reset()
		msg, err = c.Read(buf)
		assert.Success(t, err)
		assert.Equal(t, "echoed type", websock.MessageBinary, msg.Type)
		assert.Equal(t, "echoed payload", []byte{1, 2, 3, 4}, buf.Bytes())

		err = c.Close("")
		assert.Success(t, err)
	})

	t.Run("defaultSubprotocol", func(t *testing.T) {
		t.Parallel()

		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			echoHandler(w, r, nil)
		}))
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		c, _, err := websock.Dial(ctx, wsURL(s), &websock.DialOptions{
			Subprotocols: []string{"echo"},
		})
		assert.Success(t, err)
		assert.Equal(t, "subprotocol", "", c.Subprotocol())
		assert.Success(t, c.Close(""))
	})

	t.Run("notWebSocketEndpoint", func(t *testing.T) {
		t.Parallel()

		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no upgrade here", http.StatusOK)
		}))
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		_, resp, err := websock.Dial(ctx, wsURL(s), nil)
		assert.Error(t, err)
		assert.Equal(t, "handshake status", http.StatusOK, resp.StatusCode)
	})

	t.Run("badOrigin", func(t *testing.T) {
		t.Parallel()

		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Accept writes the 403 itself.
			websock.Accept(w, r, nil)
		}))
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		h := http.Header{}
		h.Set("Origin", "https://attacker.example.com")
		_, resp, err := websock.Dial(ctx, wsURL(s), &websock.DialOptions{
			HTTPHeader: h,
		})
		assert.Error(t, err)
		assert.Equal(t, "handshake status", http.StatusForbidden, resp.StatusCode)
	})

	t.Run("insecureSkipVerify", func(t *testing.T) {
		t.Parallel()

		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			echoHandler(w, r, &websock.AcceptOptions{
				InsecureSkipVerify: true,
			})
		}))
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		h := http.Header{}
		h.Set("Origin", "https://attacker.example.com")
		c, _, err := websock.Dial(ctx, wsURL(s), &websock.DialOptions{
			HTTPHeader: h,
		})
		assert.Success(t, err)
		assert.Success(t, c.Close(""))
	})
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

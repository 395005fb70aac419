package websock

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/xerrors"

	"github.com/websock-io/websock/internal/errd"
)

// DialOptions represents the options available to pass to Dial.
type DialOptions struct {
	// HTTPClient is the http client used for the handshake.
	// Its Transport must return writable bodies for WebSocket handshakes.
	// http.Transport does this correctly.
	HTTPClient *http.Client

	// HTTPHeader specifies the HTTP headers included in the handshake
	// request.
	HTTPHeader http.Header

	// Subprotocols lists the WebSocket subprotocols to negotiate with the
	// server.
	Subprotocols []string

	// Extension is the provider used to negotiate an extension with the
	// server. Defaults to NoExtProvider.
	Extension ExtensionProvider

	// MaxMessageSize bounds inbound message sizes on the resulting
	// session. Defaults to 32768.
	MaxMessageSize int64
}

// Dial performs a WebSocket handshake on url and returns the resulting
// session along with the handshake response. The negotiated subprotocol is
// available from Session.Subprotocol.
//
// If the handshake fails, the response is returned regardless with its body
// capped at 1024 bytes to ease debugging.
func Dial(ctx context.Context, u string, opts *DialOptions) (_ *Session, _ *http.Response, err error) {
	defer errd.Wrap(&err, "failed to WebSocket dial")

	if opts == nil {
		opts = &DialOptions{}
	}
	o := *opts
	opts = &o
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.HTTPHeader == nil {
		opts.HTTPHeader = http.Header{}
	}
	if opts.Extension == nil {
		opts.Extension = NoExtProvider{}
	}

	key, err := secWebSocketKey()
	if err != nil {
		return nil, nil, err
	}

	req, err := handshakeRequest(ctx, u, opts, key)
	if err != nil {
		return nil, nil, err
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to send handshake request: %w", err)
	}
	defer func() {
		if err != nil {
			// Read a bit of the body for easier debugging.
			r := io.LimitReader(resp.Body, 1024)
			b, _ := ioutil.ReadAll(r)
			respBody := resp.Body
			resp.Body = ioutil.NopCloser(bytes.NewReader(b))
			respBody.Close()
		}
	}()

	err = verifyServerResponse(opts, key, resp)
	if err != nil {
		return nil, resp, err
	}

	ext, err := opts.Extension.NegotiateClient(resp.Header.Get("Sec-WebSocket-Extensions"))
	if err != nil {
		return nil, resp, xerrors.Errorf("failed to negotiate extension: %w", err)
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, resp, xerrors.Errorf("response body is not a io.ReadWriteCloser: %T", resp.Body)
	}

	s := NewSession(rwc, RoleClient, &SessionOptions{
		MaxMessageSize: opts.MaxMessageSize,
		Extension:      ext,
		Subprotocol:    resp.Header.Get("Sec-WebSocket-Protocol"),
	})
	return s, resp, nil
}

func handshakeRequest(ctx context.Context, u string, opts *DialOptions, key string) (*http.Request, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse url: %w", err)
	}

	switch parsedURL.Scheme {
	case "ws":
		parsedURL.Scheme = "http"
	case "wss":
		parsedURL.Scheme = "https"
	default:
		return nil, xerrors.Errorf("unexpected url scheme: %q", parsedURL.Scheme)
	}

	req, _ := http.NewRequest("GET", parsedURL.String(), nil)
	req = req.WithContext(ctx)
	req.Header = opts.HTTPHeader.Clone()
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", key)
	if len(opts.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(opts.Subprotocols, ","))
	}
	if offer := opts.Extension.Offer(); offer != "" {
		req.Header.Set("Sec-WebSocket-Extensions", offer)
	}
	return req, nil
}

func secWebSocketKey() (string, error) {
	b := make([]byte, 16)
	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		return "", xerrors.Errorf("failed to read random data from rand.Reader: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

func secWebSocketAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write(keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func verifyServerResponse(opts *DialOptions, key string, resp *http.Response) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return xerrors.Errorf("expected handshake response status code %v but got %v", http.StatusSwitchingProtocols, resp.StatusCode)
	}

	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return xerrors.Errorf("WebSocket protocol violation: Connection header %q does not contain Upgrade", resp.Header.Get("Connection"))
	}

	if !headerContainsToken(resp.Header, "Upgrade", "WebSocket") {
		return xerrors.Errorf("WebSocket protocol violation: Upgrade header %q does not contain websocket", resp.Header.Get("Upgrade"))
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != secWebSocketAccept(key) {
		return xerrors.Errorf("WebSocket protocol violation: invalid Sec-WebSocket-Accept %q for Sec-WebSocket-Key %q",
			resp.Header.Get("Sec-WebSocket-Accept"), key)
	}

	err := verifySubprotocol(opts.Subprotocols, resp)
	if err != nil {
		return err
	}

	return nil
}

func verifySubprotocol(subprotos []string, resp *http.Response) error {
	proto := resp.Header.Get("Sec-WebSocket-Protocol")
	if proto == "" {
		return nil
	}

	for _, sp := range subprotos {
		if strings.EqualFold(sp, proto) {
			return nil
		}
	}
	return xerrors.Errorf("WebSocket protocol violation: unexpected Sec-WebSocket-Protocol from server: %q", proto)
}

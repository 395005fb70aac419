package websock

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/xerrors"

	"github.com/websock-io/websock/internal/errd"
)

// AcceptOptions represents the options available to pass to Accept.
type AcceptOptions struct {
	// Subprotocols lists the WebSocket subprotocols that Accept will
	// negotiate with a client. The empty subprotocol is always negotiated
	// as per RFC 6455; reject it after the fact by closing the session if
	// Session.Subprotocol() == "".
	Subprotocols []string

	// InsecureSkipVerify disables Accept's origin verification. By default
	// the handshake only succeeds when the Origin matches the Host, to
	// prevent CSRF through cookies as there is no same origin policy for
	// WebSockets.
	InsecureSkipVerify bool

	// Extension is the provider used to negotiate an extension with the
	// client. Defaults to NoExtProvider.
	Extension ExtensionProvider

	// MaxMessageSize bounds inbound message sizes on the resulting
	// session. Defaults to 32768.
	MaxMessageSize int64
}

// Accept accepts a WebSocket handshake from a client and upgrades the
// connection to a Session.
//
// If an error occurs, Accept has already written an appropriate response.
func Accept(w http.ResponseWriter, r *http.Request, opts *AcceptOptions) (_ *Session, err error) {
	defer errd.Wrap(&err, "failed to accept WebSocket connection")

	if opts == nil {
		opts = &AcceptOptions{}
	}
	o := *opts
	opts = &o
	if opts.Extension == nil {
		opts.Extension = NoExtProvider{}
	}

	err = verifyClientRequest(w, r)
	if err != nil {
		return nil, err
	}

	if !opts.InsecureSkipVerify {
		err = authenticateOrigin(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return nil, err
		}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = xerrors.New("passed ResponseWriter does not implement http.Hijacker")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return nil, err
	}

	ext, extHeader, err := opts.Extension.NegotiateServer(r.Header.Get("Sec-WebSocket-Extensions"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, xerrors.Errorf("failed to negotiate extension: %w", err)
	}

	w.Header().Set("Upgrade", "websocket")
	w.Header().Set("Connection", "Upgrade")
	w.Header().Set("Sec-WebSocket-Accept", secWebSocketAccept(r.Header.Get("Sec-WebSocket-Key")))

	subproto := selectSubprotocol(r, opts.Subprotocols)
	if subproto != "" {
		w.Header().Set("Sec-WebSocket-Protocol", subproto)
	}
	if extHeader != "" {
		w.Header().Set("Sec-WebSocket-Extensions", extHeader)
	}

	w.WriteHeader(http.StatusSwitchingProtocols)
	// Wrapping ResponseWriters like gin's only flush headers on demand.
	if fw, ok := w.(interface{ WriteHeaderNow() }); ok {
		fw.WriteHeaderNow()
	}

	netConn, brw, err := hj.Hijack()
	if err != nil {
		return nil, xerrors.Errorf("failed to hijack connection: %w", err)
	}

	// The hijacked bufio.Reader may hold bytes the client sent right after
	// its handshake request. See https://github.com/golang/go/issues/32314
	b, _ := brw.Reader.Peek(brw.Reader.Buffered())
	transport := net.Conn(netConn)
	if len(b) > 0 {
		transport = &prefixedConn{
			r:    io.MultiReader(bytes.NewReader(b), netConn),
			Conn: netConn,
		}
	}

	return NewSession(transport, RoleServer, &SessionOptions{
		MaxMessageSize: opts.MaxMessageSize,
		Extension:      ext,
		Subprotocol:    subproto,
	}), nil
}

// prefixedConn replays bytes buffered during the hijack before reading from
// the connection itself.
type prefixedConn struct {
	r io.Reader
	net.Conn
}

func (c *prefixedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func verifyClientRequest(w http.ResponseWriter, r *http.Request) error {
	if !r.ProtoAtLeast(1, 1) {
		err := xerrors.Errorf("WebSocket protocol violation: handshake request must be at least HTTP/1.1: %q", r.Proto)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if !headerContainsToken(r.Header, "Connection", "Upgrade") {
		err := xerrors.Errorf("WebSocket protocol violation: Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if !headerContainsToken(r.Header, "Upgrade", "WebSocket") {
		err := xerrors.Errorf("WebSocket protocol violation: Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Method != "GET" {
		err := xerrors.Errorf("WebSocket protocol violation: handshake request method is not GET but %q", r.Method)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		err := xerrors.Errorf("unsupported WebSocket protocol version: %q", r.Header.Get("Sec-WebSocket-Version"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Header.Get("Sec-WebSocket-Key") == "" {
		err := xerrors.New("WebSocket protocol violation: missing Sec-WebSocket-Key")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	return nil
}

func authenticateOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil {
		return xerrors.Errorf("failed to parse Origin header %q: %w", origin, err)
	}
	if !strings.EqualFold(u.Host, r.Host) {
		return xerrors.Errorf("request Origin %q is not authorized for Host %q", origin, r.Host)
	}
	return nil
}

func selectSubprotocol(r *http.Request, subprotocols []string) string {
	for _, sp := range subprotocols {
		if headerContainsToken(r.Header, "Sec-WebSocket-Protocol", sp) {
			return sp
		}
	}
	return ""
}

func headerContainsToken(h http.Header, key, token string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], token)
}

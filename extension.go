package websock

import "golang.org/x/xerrors"

// Extension is a negotiated per-connection WebSocket extension instance.
// The session owns it exclusively but is otherwise indifferent to it; no
// bundled extension exists yet so NoExtension is the only implementation
// shipped with this package.
type Extension interface {
	// Name returns the extension token as it appears in the
	// Sec-WebSocket-Extensions header, or "" for no extension.
	Name() string
}

// ExtensionProvider negotiates an Extension during the opening handshake.
type ExtensionProvider interface {
	// Offer returns the Sec-WebSocket-Extensions header value a client
	// sends with its handshake request, or "" to omit the header.
	Offer() string

	// NegotiateClient inspects the Sec-WebSocket-Extensions header of the
	// server's handshake response and produces the negotiated instance.
	NegotiateClient(response string) (Extension, error)

	// NegotiateServer inspects the Sec-WebSocket-Extensions header of a
	// client's handshake request and produces the negotiated instance
	// along with the header value to respond with, "" for none.
	NegotiateServer(request string) (Extension, string, error)
}

// NoExtension is the negotiated extension of a connection that did not
// negotiate one.
type NoExtension struct{}

// Name returns "".
func (NoExtension) Name() string { return "" }

// NoExtProvider negotiates no extension at all: it offers nothing and
// rejects a server that claims an extension was agreed on.
type NoExtProvider struct{}

// Offer returns "".
func (NoExtProvider) Offer() string { return "" }

// NegotiateClient returns NoExtension and rejects any non-empty response
// header, as the server may only select extensions that were offered.
func (NoExtProvider) NegotiateClient(response string) (Extension, error) {
	if response != "" {
		return nil, xerrors.Errorf("server negotiated an extension that was not offered: %q", response)
	}
	return NoExtension{}, nil
}

// NegotiateServer ignores the client's offer and negotiates no extension.
func (NoExtProvider) NegotiateServer(request string) (Extension, string, error) {
	return NoExtension{}, "", nil
}

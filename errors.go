package websock

import "errors"

// ErrClosed is returned by every Session operation attempted after the
// session reached its terminal closed state.
var ErrClosed = errors.New("websock: session is closed")

// ProtocolError indicates the peer or the caller violated the WebSocket
// protocol: an oversized ping payload, a pong that does not answer the
// outstanding ping, or a malformed frame. Except for the oversized ping,
// which transmits nothing, a ProtocolError is terminal for the session.
type ProtocolError string

func (e ProtocolError) Error() string {
	return "websock: protocol violation: " + string(e)
}

// readError pairs a failure from the frame codec with the close reason, if
// any, that should be sent to the peer before the failure is surfaced.
// Raw transport failures carry no close reason as the connection cannot be
// written to anymore.
type readError struct {
	closeWith *CloseReason
	err       error
}

func (e *readError) Error() string { return e.err.Error() }

func (e *readError) Unwrap() error { return e.err }

// failRead builds the codec's protocol failure: the error surfaced to the
// caller and the matching close reason recommended to the engine.
func failRead(code CloseCode, msg string) *readError {
	return &readError{
		closeWith: &CloseReason{Code: code, Reason: msg},
		err:       ProtocolError(msg),
	}
}

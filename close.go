package websock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

// CloseCode represents a WebSocket close status code.
// https://tools.ietf.org/html/rfc6455#section-7.4
type CloseCode int

// These codes were retrieved from:
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
//
// The defined constants only represent the status codes registered with IANA.
// The 4000-4999 range of status codes is reserved for arbitrary use by applications.
const (
	CloseNormalClosure   CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseProtocolError   CloseCode = 1002
	CloseUnsupportedData CloseCode = 1003

	// 1004 is reserved and so not exported.
	closeReserved CloseCode = 1004

	// CloseNoStatusReceived cannot be sent in a close frame.
	// It is reported for a close frame received without a status code.
	CloseNoStatusReceived CloseCode = 1005

	// CloseAbnormalClosure cannot be sent in a close frame either.
	// It describes a connection torn down without a closing handshake.
	CloseAbnormalClosure CloseCode = 1006

	CloseInvalidFramePayloadData CloseCode = 1007
	ClosePolicyViolation         CloseCode = 1008
	CloseMessageTooBig           CloseCode = 1009
	CloseMandatoryExtension      CloseCode = 1010
	CloseInternalServerErr       CloseCode = 1011
	CloseServiceRestart          CloseCode = 1012
	CloseTryAgainLater           CloseCode = 1013
	CloseBadGateway              CloseCode = 1014

	// CloseTLSHandshake is never sent over the wire.
	closeTLSHandshake CloseCode = 1015
)

// CloseReason is the contents of a close frame: a status code and an
// optional UTF-8 description. It is carried by MessageClose and is the
// final information a session yields about why the connection ended.
type CloseReason struct {
	Code   CloseCode
	Reason string
}

func (r CloseReason) String() string {
	return fmt.Sprintf("code = %v and reason = %q", r.Code, r.Reason)
}

// See https://tools.ietf.org/html/rfc6455#section-7.4.1
func validWireCloseCode(code CloseCode) bool {
	switch code {
	case closeReserved, CloseNoStatusReceived, CloseAbnormalClosure, closeTLSHandshake:
		return false
	}
	if code >= CloseNormalClosure && code <= CloseBadGateway {
		return true
	}
	if code >= 3000 && code <= 4999 {
		return true
	}
	return false
}

// parseClosePayload interprets the first two bytes of p as the status code
// and the rest as a UTF-8 description.
func parseClosePayload(p []byte) (CloseReason, error) {
	if len(p) == 0 {
		return CloseReason{Code: CloseNoStatusReceived}, nil
	}
	if len(p) < 2 {
		return CloseReason{}, errors.New("close payload too small, cannot contain the 2 byte status code")
	}

	r := CloseReason{
		Code:   CloseCode(binary.BigEndian.Uint16(p)),
		Reason: string(p[2:]),
	}
	if !validWireCloseCode(r.Code) {
		return CloseReason{}, fmt.Errorf("invalid status code %v", r.Code)
	}
	if !utf8.ValidString(r.Reason) {
		return CloseReason{}, fmt.Errorf("invalid utf-8 in close reason %q", r.Reason)
	}
	return r, nil
}

func (r CloseReason) bytes() ([]byte, error) {
	if len(r.Reason) > maxControlPayload-2 {
		return nil, fmt.Errorf("close reason max is %v bytes but got %q with length %v", maxControlPayload-2, r.Reason, len(r.Reason))
	}
	if !validWireCloseCode(r.Code) {
		return nil, fmt.Errorf("status code %v cannot be sent", r.Code)
	}

	p := make([]byte, 2+len(r.Reason))
	binary.BigEndian.PutUint16(p, uint16(r.Code))
	copy(p[2:], r.Reason)
	return p, nil
}

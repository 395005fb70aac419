// Package websock implements the WebSocket protocol as a per-connection
// session engine.
//
// See https://tools.ietf.org/html/rfc6455
//
// A Session is obtained from Dial, Accept or NewSession and drives exactly
// one connection: Read surfaces data messages after transparently answering
// pings, validating pongs and echoing close frames; Write and
// WriteFragmented emit correctly flagged outbound frames; Close performs
// the closing handshake and releases the transport.
//
// A Session is not safe for concurrent use. See the docs on Session.
package websock // import "github.com/websock-io/websock"

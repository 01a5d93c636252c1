package transport

import (
	"context"
	"errors"
)

// Close codes sent to the client when the server ends a session.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseServerError     = 1011
	CloseUnauthenticated = 4001
	CloseConfigError     = 4002
	CloseTargetNotFound  = 4004
	CloseDocumentFailed  = 5000
)

var (
	// ErrDisconnected is returned exactly once by ReceiveAudio when the peer goes away.
	ErrDisconnected = errors.New("transport disconnected")
	// ErrMalformedHandshake is returned when the first client message is not a handshake object.
	ErrMalformedHandshake = errors.New("malformed handshake")
	ErrClosed             = errors.New("transport closed")
)

// Handshake is the first client message, before defaults are applied.
type Handshake struct {
	Language string `json:"language"`
	DocTitle string `json:"docTitle"`
	DocMode  string `json:"docMode"`
	DocID    string `json:"docId"`
}

// Transport is one client connection carrying a single session.
//
// After ReceiveAudio has returned ErrDisconnected every later call returns io.EOF.
type Transport interface {
	ReceiveHandshake(ctx context.Context) (Handshake, error)
	ReceiveAudio(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, event OutboundEvent) error
	Close(code int, reason string) error
}

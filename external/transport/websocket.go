package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/foxseedlab/voicememo/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	closeWriteTimeout   = time.Second
	// Control frames carry at most 125 bytes, two of which are the code.
	maxCloseReasonBytes = 123
)

type frame struct {
	messageType int
	data        []byte
}

// WebSocketConn adapts one gorilla connection to transport.Transport.
type WebSocketConn struct {
	ws      *websocket.Conn
	frames  chan frame
	done    chan struct{}
	stopped chan struct{}

	readMu             sync.Mutex
	readErr            error
	disconnectReported bool

	writeMu sync.Mutex
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

func NewWebSocketConn(ws *websocket.Conn, maxMessageBytes int64) *WebSocketConn {
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	c := &WebSocketConn{
		ws:      ws,
		frames:  make(chan frame),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *WebSocketConn) readLoop() {
	defer close(c.stopped)
	defer close(c.frames)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readMu.Lock()
			c.readErr = err
			c.readMu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}
		select {
		case c.frames <- frame{messageType: mt, data: data}:
		case <-c.done:
			// discard until the peer answers the close frame
		}
	}
}

// nextFrame reports the disconnect once; later calls see io.EOF.
func (c *WebSocketConn) nextFrame(ctx context.Context) (frame, error) {
	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if ok {
			return f, nil
		}
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.disconnectReported {
		return frame{}, io.EOF
	}
	c.disconnectReported = true
	if c.readErr != nil {
		return frame{}, fmt.Errorf("%w: %w", transport.ErrDisconnected, c.readErr)
	}
	return frame{}, transport.ErrDisconnected
}

func (c *WebSocketConn) ReceiveHandshake(ctx context.Context) (transport.Handshake, error) {
	f, err := c.nextFrame(ctx)
	if err != nil {
		return transport.Handshake{}, err
	}
	if f.messageType != websocket.TextMessage {
		return transport.Handshake{}, fmt.Errorf("%w: expected a text message", transport.ErrMalformedHandshake)
	}
	return transport.DecodeHandshake(f.data)
}

func (c *WebSocketConn) ReceiveAudio(ctx context.Context) ([]byte, error) {
	for {
		f, err := c.nextFrame(ctx)
		if err != nil {
			return nil, err
		}
		if f.messageType == websocket.BinaryMessage {
			return f.data, nil
		}
		slog.Debug("ignoring non-audio message", "bytes", len(f.data))
	}
}

func (c *WebSocketConn) Send(ctx context.Context, event transport.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrDisconnected, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrDisconnected, err)
	}
	return nil
}

func (c *WebSocketConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		msg := websocket.FormatCloseMessage(code, truncateReason(reason))
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			slog.Debug("failed to write close frame", "code", code, "error", err)
		}
		c.writeMu.Unlock()
		close(c.done)
		timer := time.NewTimer(closeWriteTimeout)
		select {
		case <-c.stopped:
		case <-timer.C:
		}
		timer.Stop()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func truncateReason(reason string) string {
	if len(reason) <= maxCloseReasonBytes {
		return reason
	}
	cut := maxCloseReasonBytes
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

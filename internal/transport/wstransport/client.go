// Package wstransport implements transport.Transport and
// transport.Server over WebSocket connections, grounded on the teacher
// project's internal/homeassistant.WSClient: the same dial/auth-free
// connect, a single background readLoop, and a connMu-guarded write
// path, generalized from one fixed message shape to opaque
// transport.Frame payloads and from a single peer to many server-side
// connections.
package wstransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nugget/eventbridge/internal/buildinfo"
	"github.com/nugget/eventbridge/internal/transport"
)

const (
	readBufferSize  = 1024 * 1024
	writeBufferSize = 64 * 1024
	maxMessageBytes = 100 * 1024 * 1024
	frameBuffer     = 256
)

// clientTransport is the client side of a WebSocket connection.
type clientTransport struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	frames    chan transport.Frame
	connState chan transport.ConnState
	logger    *slog.Logger
}

// Dial connects to a WebSocket server at rawURL (scheme ws/wss,
// http/https coerced automatically) and returns a ready-to-use
// transport.Transport. The connection's read loop starts before Dial
// returns.
func Dial(ctx context.Context, rawURL string, logger *slog.Logger) (transport.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
	}
	header := http.Header{"User-Agent": []string{buildinfo.UserAgent()}}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &clientTransport{
		conn:      conn,
		frames:    make(chan transport.Frame, frameBuffer),
		connState: make(chan transport.ConnState, 4),
		logger:    logger,
	}
	c.connState <- transport.Connected

	go c.readLoop()
	return c, nil
}

func (c *clientTransport) Publish(_ context.Context, f transport.Frame) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, f.Payload)
}

func (c *clientTransport) Subscribe() <-chan transport.Frame { return c.frames }

// Broadcast has only one peer on the client side, so it is Publish.
func (c *clientTransport) Broadcast(ctx context.Context, f transport.Frame) error {
	return c.Publish(ctx, f)
}

func (c *clientTransport) ConnectionState() <-chan transport.ConnState { return c.connState }

func (c *clientTransport) Close() error {
	c.connMu.Lock()
	err := c.conn.Close()
	c.connMu.Unlock()
	select {
	case c.connState <- transport.Disconnected:
	default:
	}
	return err
}

// readLoop mirrors WSClient.readLoop: a single goroutine owns all
// reads, closing the frames channel on any read error so the
// protocol's demultiplexer sees end-of-stream rather than hanging.
func (c *clientTransport) readLoop() {
	defer close(c.frames)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("websocket closed normally")
			} else {
				c.logger.Error("websocket read error, connection lost", "error", err)
			}
			select {
			case c.connState <- transport.Disconnected:
			default:
			}
			return
		}

		select {
		case c.frames <- transport.Frame{Kind: "", Payload: payload}:
		default:
			c.logger.Warn("inbound frame buffer full, dropping frame")
		}
	}
}

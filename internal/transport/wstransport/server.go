package wstransport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/nugget/eventbridge/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: writeBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Listener is the server side of a WebSocket transport: an
// http.Handler that upgrades every request into a transport.Connection
// and publishes it on Accept.
type Listener struct {
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[string]*serverConn
	closed bool
	accept chan transport.Connection

	nextID atomic.Int64
}

// NewListener creates a Listener ready to be mounted as an
// http.Handler (for example at "/ws" on an *gin-gonic/gin.Engine from
// internal/adminhttp, or any http.ServeMux).
func NewListener(logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		logger: logger,
		conns:  make(map[string]*serverConn),
		accept: make(chan transport.Connection, 16),
	}
}

func (l *Listener) Accept() <-chan transport.Connection { return l.accept }

// ServeHTTP upgrades the request to a WebSocket connection and
// registers it. Implements http.Handler so Listener mounts directly
// onto any router.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	id := fmt.Sprintf("ws-%d", l.nextID.Add(1))
	sc := &serverConn{
		id:      id,
		conn:    conn,
		inbound: make(chan transport.Frame, frameBuffer),
		done:    make(chan struct{}),
		logger:  l.logger,
	}

	l.mu.Lock()
	closed := l.closed
	if !closed {
		l.conns[id] = sc
	}
	l.mu.Unlock()
	if closed {
		conn.Close()
		return
	}

	go sc.readLoop(func() {
		l.mu.Lock()
		delete(l.conns, id)
		l.mu.Unlock()
	})

	l.accept <- sc
}

// Broadcast sends f to every currently connected client.
func (l *Listener) Broadcast(_ context.Context, f transport.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		if err := c.writeFrame(f); err != nil {
			l.logger.Debug("broadcast write failed", "connId", c.id, "error", err)
		}
	}
	return nil
}

// Send addresses f to one connection by id.
func (l *Listener) Send(_ context.Context, connID string, f transport.Frame) error {
	l.mu.Lock()
	c, ok := l.conns[connID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("wstransport: unknown connection %q", connID)
	}
	return c.writeFrame(f)
}

// Close terminates every connection and stops accepting new ones.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, c := range l.conns {
		c.terminate()
	}
	close(l.accept)
	return nil
}

type serverConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
	inbound chan transport.Frame
	done    chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
}

func (c *serverConn) ID() string                     { return c.id }
func (c *serverConn) Inbound() <-chan transport.Frame { return c.inbound }
func (c *serverConn) Done() <-chan struct{}           { return c.done }

func (c *serverConn) Send(_ context.Context, f transport.Frame) error {
	return c.writeFrame(f)
}

func (c *serverConn) writeFrame(f transport.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, f.Payload)
}

func (c *serverConn) readLoop(onClose func()) {
	defer onClose()
	defer c.terminate()
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket connection lost", "connId", c.id, "error", err)
			}
			return
		}
		select {
		case c.inbound <- transport.Frame{Payload: payload}:
		default:
			c.logger.Warn("server inbound buffer full, dropping frame", "connId", c.id)
		}
	}
}

func (c *serverConn) terminate() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		close(c.done)
		close(c.inbound)
	})
}

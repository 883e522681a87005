// Package memtransport is an in-process transport pairing a client
// handle with a server listener over buffered Go channels. It is both
// a production-usable transport for same-process client/server pairing
// (cmd/eventbridge does not use it; its subcommands need a websocket or
// mqtt transport) and the primary test double for the protocol
// engines, playing the role the teacher's
// internal/events.Bus plays for in-process fan-out: non-blocking sends
// to per-subscriber channels, with a full channel dropping rather than
// blocking the publisher.
package memtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/nugget/eventbridge/internal/transport"
)

const inboundBuffer = 256

// Listener is the server side of an in-memory transport: it accepts
// Client handles created with Dial and broadcasts/addresses frames
// across them.
type Listener struct {
	mu    sync.Mutex
	conns map[string]*serverConn
	next  int
	accept chan transport.Connection
	closed bool
}

// NewListener creates a Listener ready to Dial clients against.
func NewListener() *Listener {
	return &Listener{
		conns:  make(map[string]*serverConn),
		accept: make(chan transport.Connection, 16),
	}
}

func (l *Listener) Accept() <-chan transport.Connection { return l.accept }

// Broadcast sends f to every currently connected client. Non-blocking
// per connection: a client whose inbound buffer is full has the frame
// dropped for it, matching the unbounded-at-the-application-layer,
// best-effort nature of the wire transport (spec.md §1, §9).
func (l *Listener) Broadcast(_ context.Context, f transport.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.conns {
		c.deliverToClient(f)
	}
	return nil
}

// Send addresses f to one connection by id.
func (l *Listener) Send(_ context.Context, connID string, f transport.Frame) error {
	l.mu.Lock()
	c, ok := l.conns[connID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("memtransport: unknown connection %q", connID)
	}
	c.deliverToClient(f)
	return nil
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

// Dial creates a new client Transport connected to this listener and
// registers the server-side Connection for it on the listener's Accept
// channel.
func (l *Listener) Dial() transport.Transport {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	id := fmt.Sprintf("conn-%d", l.next)

	sc := &serverConn{
		id:        id,
		toClient:  make(chan transport.Frame, inboundBuffer),
		toServer:  make(chan transport.Frame, inboundBuffer),
		done:      make(chan struct{}),
	}
	cc := &clientHandle{
		conn:    sc,
		connState: make(chan transport.ConnState, 4),
	}
	cc.connState <- transport.Connected

	l.conns[id] = sc
	if !l.closed {
		l.accept <- sc
	}
	return cc
}

// serverConn is both the transport.Connection seen by the server and
// the shared plumbing a paired clientHandle writes to / reads from.
type serverConn struct {
	id       string
	toClient chan transport.Frame
	toServer chan transport.Frame
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
}

func (c *serverConn) ID() string                        { return c.id }
func (c *serverConn) Inbound() <-chan transport.Frame    { return c.toServer }
func (c *serverConn) Done() <-chan struct{}              { return c.done }

func (c *serverConn) Send(_ context.Context, f transport.Frame) error {
	c.deliverToClient(f)
	return nil
}

func (c *serverConn) deliverToClient(f transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.toClient <- f:
	default:
		// Slow consumer: drop rather than block the broadcaster.
	}
}

func (c *serverConn) deliverToServer(f transport.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.toServer <- f:
	default:
	}
}

func (c *serverConn) terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.toClient)
	close(c.toServer)
}

// clientHandle is the transport.Transport implementation handed back
// from Dial.
type clientHandle struct {
	conn      *serverConn
	connState chan transport.ConnState
}

func (c *clientHandle) Publish(ctx context.Context, f transport.Frame) error {
	c.conn.deliverToServer(f)
	return nil
}

func (c *clientHandle) Subscribe() <-chan transport.Frame { return c.conn.toClient }

func (c *clientHandle) Broadcast(ctx context.Context, f transport.Frame) error {
	return c.Publish(ctx, f)
}

func (c *clientHandle) ConnectionState() <-chan transport.ConnState { return c.connState }

func (c *clientHandle) Close() error {
	c.conn.terminate()
	select {
	case c.connState <- transport.Disconnected:
	default:
	}
	return nil
}

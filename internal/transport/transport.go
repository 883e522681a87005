// Package transport defines the contract the protocol core depends on
// for moving opaque frames across a full-duplex connection. Concrete
// transports (in-memory, WebSocket, MQTT) live in subpackages and are
// external collaborators from the core's point of view: the core never
// interprets frame payloads beyond the wire envelope schema.
package transport

import "context"

// Frame is one opaque unit on the wire: a payload (the JSON-encoded
// envelope) plus the coarse kind mirrored from the envelope's type
// field, as described in spec.md §6.
type Frame struct {
	// Kind mirrors the envelope's discriminator: "command",
	// "command_result", "event", or "subscribe".
	Kind    string
	Payload []byte
}

// ConnState is the externally observed connection lifecycle from
// spec.md §4.10: Connecting -> Connected -> Disconnected.
type ConnState int

const (
	Connecting ConnState = iota
	Connected
	Disconnected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Transport is the interface contract the rest of this module is
// written against. A transport need not be ordered across independent
// logical streams, but frames delivered to a single Subscribe call
// must preserve send order (spec.md §5).
type Transport interface {
	// Publish sends a single frame to whatever the transport considers
	// "the other side" of this handle (the server for a client handle,
	// or a specific connection for a server-side per-connection handle).
	Publish(ctx context.Context, f Frame) error

	// Subscribe returns a channel of inbound frames. The channel is
	// closed when the transport's connection is lost or Close is
	// called; callers must not close it themselves.
	Subscribe() <-chan Frame

	// Broadcast sends a frame to every connection the transport knows
	// about. Only meaningful on the server side; client transports may
	// implement it as Publish.
	Broadcast(ctx context.Context, f Frame) error

	// ConnectionState returns a channel of connection lifecycle
	// transitions. Implementations publish an initial value on
	// subscribe-time state and every transition thereafter.
	ConnectionState() <-chan ConnState

	// Close releases the transport's resources. Subscribe's channel is
	// closed as part of Close.
	Close() error
}

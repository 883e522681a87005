package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nugget/eventbridge/internal/protocol"
	"github.com/nugget/eventbridge/internal/transport"
	"github.com/nugget/eventbridge/internal/wire"
)

// Server is the server-side protocol instance (spec.md §4.7-§4.9): it
// owns the subscription registry and the process-wide command intake
// queue, and exposes SendResult/PublishEvent as the router the
// application drives the event store/aggregate engine with.
type Server struct {
	transport transport.Server
	logger    *slog.Logger
	metrics   Metrics

	registry *registry
	commands *commandQueue

	wg          sync.WaitGroup
	acceptCancel context.CancelFunc
	acceptDone   chan struct{}
}

// New creates a Server over t and immediately starts accepting
// connections: each accepted transport.Connection gets its own reader
// task that feeds the shared command queue and subscription registry
// (spec.md §4.8). Like the client's demultiplexer, the accept loop is
// tied to the returned instance's lifetime and cannot outlive Close.
func New(t transport.Server, opts ...Option) *Server {
	s := &Server{
		transport:  t,
		logger:     slog.Default(),
		metrics:    noopMetrics{},
		registry:   newRegistry(),
		commands:   newCommandQueue(),
		acceptDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.acceptCancel = cancel
	go s.acceptLoop(ctx)

	return s
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.acceptDone)

	conns := s.transport.Accept()
	for {
		select {
		case <-ctx.Done():
			return
		case conn, ok := <-conns:
			if !ok {
				return
			}
			s.wg.Add(1)
			go s.handleConnection(ctx, conn)
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn transport.Connection) {
	defer s.wg.Done()
	defer func() {
		s.registry.removeConnection(conn.ID())
		s.metrics.SubscribedStreams(s.registry.streamCount())
	}()

	inbound := conn.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case f, ok := <-inbound:
			if !ok {
				return
			}
			s.dispatch(conn.ID(), f)
		}
	}
}

func (s *Server) dispatch(connID string, f transport.Frame) {
	env, err := wire.Decode(f.Payload)
	if err != nil {
		s.logger.Debug("dropping malformed inbound frame", "connId", connID, "error", err)
		s.metrics.DecodeFailure()
		return
	}

	switch env.Type {
	case wire.TypeCommand:
		c := env.Command
		s.commands.push(protocol.InboundCommand{
			ConnID: connID,
			Command: protocol.Command{
				ID:      c.ID,
				Target:  c.Target,
				Name:    c.Name,
				Payload: c.Payload,
			},
		})
		s.metrics.PendingCommands(s.commands.len())

	case wire.TypeSubscribe:
		s.registry.subscribe(env.Subscribe.StreamID, connID)
		s.metrics.SubscribedStreams(s.registry.streamCount())

	default:
		s.logger.Debug("dropping envelope not expected on server side", "type", env.Type)
	}
}

// Commands blocks until the next inbound command is available, ctx
// ends, or the server is closed (returning false). The application
// drains this as its lazy sequence of commands (spec.md §4.8).
func (s *Server) Commands(ctx context.Context) (protocol.InboundCommand, bool, error) {
	for {
		if cmd, ok := s.commands.pop(); ok {
			s.metrics.PendingCommands(s.commands.len())
			return cmd, true, nil
		}
		select {
		case _, open := <-s.commands.notify:
			if !open {
				return protocol.InboundCommand{}, false, nil
			}
		case <-ctx.Done():
			return protocol.InboundCommand{}, false, ctx.Err()
		}
	}
}

// SendResult encodes and addresses a command_result envelope to the
// connection that originally sent the command (spec.md §4.9). The
// caller supplies connID from the InboundCommand the result answers.
func (s *Server) SendResult(ctx context.Context, connID string, commandID string, result protocol.CommandResult) error {
	var env *wire.Envelope
	if result.Success {
		env = wire.NewSuccessResult(commandID, result.Position)
	} else {
		env = wire.NewFailureResult(commandID, result.Err)
	}

	raw, err := wire.Encode(env)
	if err != nil {
		return fmt.Errorf("encode command_result: %w", err)
	}
	return s.transport.Send(ctx, connID, transport.Frame{Kind: wire.TypeCommandResult, Payload: raw})
}

// PublishEvent fans event out to every connection subscribed to its
// stream (spec.md §4.7). If no connection is currently subscribed, the
// event is dropped without touching the transport at all.
func (s *Server) PublishEvent(ctx context.Context, event protocol.Event) error {
	streamID := event.Position.StreamID
	subscribers := s.registry.subscribers(streamID)
	if len(subscribers) == 0 {
		s.metrics.EventDroppedNoSubscribers()
		return nil
	}

	raw, err := wire.Encode(wire.NewEvent(streamID, event.Position, event.Type, event.Data, event.Timestamp))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	frame := transport.Frame{Kind: wire.TypeEvent, Payload: raw}

	var firstErr error
	for _, connID := range subscribers {
		if err := s.transport.Send(ctx, connID, frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PendingCommandCount reports how many commands are queued but not yet
// drained by Commands, for the admin HTTP debug endpoint.
func (s *Server) PendingCommandCount() int {
	return s.commands.len()
}

// SubscribedStreamIDs returns a snapshot of every stream id with at
// least one active subscriber, for the admin HTTP debug endpoint.
func (s *Server) SubscribedStreamIDs() []string {
	return s.registry.streamIDs()
}

// Close stops accepting new connections, waits for every in-flight
// connection handler to return, and closes the underlying transport.
func (s *Server) Close(ctx context.Context) error {
	s.acceptCancel()

	select {
	case <-s.acceptDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.commands.close()
	return s.transport.Close()
}

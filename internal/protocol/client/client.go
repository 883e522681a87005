// Package client implements the client-side protocol engine (spec.md
// §4.2-§4.6): the correlation table, the subscription table, the
// background demultiplexer, the command sender, and the subscription
// opener. It is modeled directly on the teacher project's
// internal/homeassistant WSClient — a pending-response map keyed by
// message id, an events channel fed by a single read loop — but
// generalized from one fixed wire shape to the four-variant envelope schema in
// internal/wire and from a single gorilla/websocket connection to any
// internal/transport.Transport.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/eventbridge/internal/clock"
	"github.com/nugget/eventbridge/internal/protocol"
	"github.com/nugget/eventbridge/internal/transport"
	"github.com/nugget/eventbridge/internal/wire"
)

// DefaultDeadline is the fixed 10-second command deadline from
// spec.md §4.5/§6. Send always uses it; SendWithDeadline is the §13
// opt-in escape hatch for callers that need a different bound.
const DefaultDeadline = 10 * time.Second

// Protocol is the client-side protocol instance (spec.md §3's
// ownership section: it exclusively owns the correlation table, the
// subscription table, and the demultiplexer task handle).
type Protocol struct {
	transport     transport.Transport
	logger        *slog.Logger
	clock         clock.Clock
	metrics       Metrics
	correlation   *correlationTable
	subscriptions *subscriptionTable

	demuxCancel context.CancelFunc
	demuxDone   chan struct{}
}

// New creates a Protocol over t and immediately starts its
// demultiplexer task, background and tied to the returned instance's
// lifetime (spec.md §4.4, §5): it cannot outlive Close.
func New(t transport.Transport, opts ...Option) *Protocol {
	p := &Protocol{
		transport:     t,
		logger:        slog.Default(),
		clock:         clock.Real{},
		metrics:       noopMetrics{},
		correlation:   newCorrelationTable(),
		subscriptions: newSubscriptionTable(),
		demuxDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.demuxCancel = cancel
	go p.demultiplex(ctx)

	return p
}

// PendingCommandIDs returns a snapshot of command ids awaiting a
// result, for the admin HTTP debug endpoint.
func (p *Protocol) PendingCommandIDs() []string {
	return p.correlation.ids()
}

// SubscribedStreamIDs returns a snapshot of stream ids with an open
// subscription, for the admin HTTP debug endpoint.
func (p *Protocol) SubscribedStreamIDs() []string {
	return p.subscriptions.streamIDs()
}

// Close terminates the demultiplexer task and releases every pending
// slot and subscription queue (spec.md §5). It waits for the
// demultiplexer to fully drain, bounded by ctx, then closes the
// underlying transport.
func (p *Protocol) Close(ctx context.Context) error {
	p.demuxCancel()
	select {
	case <-p.demuxDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, id := range p.subscriptions.streamIDs() {
		p.subscriptions.close(id)
	}
	for _, id := range p.correlation.ids() {
		if ch, ok := p.correlation.take(id); ok {
			close(ch)
		}
	}

	return p.transport.Close()
}

// ConnectionState exposes the transport's connection lifecycle
// unchanged, so callers can observe disconnects without polling
// (SPEC_FULL.md §12).
func (p *Protocol) ConnectionState() <-chan transport.ConnState {
	return p.transport.ConnectionState()
}

// demultiplex is the background task from spec.md §4.4: it consumes
// every inbound frame, decodes it, and dispatches to the correlation
// or subscription table. A malformed or orphan frame is logged at
// debug and the loop continues; the task terminates only when ctx is
// cancelled (by Close) or the transport's frame channel closes.
func (p *Protocol) demultiplex(ctx context.Context) {
	defer close(p.demuxDone)

	frames := p.transport.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				p.logger.Info("client demultiplexer stopping: transport closed")
				return
			}
			p.dispatch(f)
		}
	}
}

func (p *Protocol) dispatch(f transport.Frame) {
	env, err := wire.Decode(f.Payload)
	if err != nil {
		p.logger.Debug("dropping malformed inbound frame", "error", err)
		p.metrics.DecodeFailure()
		return
	}

	switch env.Type {
	case wire.TypeCommandResult:
		p.dispatchResult(env.CommandResult)
	case wire.TypeEvent:
		p.dispatchEvent(env.Event)
	default:
		p.logger.Debug("dropping envelope not expected on client side", "type", env.Type)
	}
}

func (p *Protocol) dispatchResult(cr *wire.CommandResultEnvelope) {
	ch, ok := p.correlation.take(cr.CommandID)
	if !ok {
		p.logger.Debug("dropping command_result for unknown correlation", "commandId", cr.CommandID)
		p.metrics.OrphanFrame("command_result")
		return
	}

	var result protocol.CommandResult
	if cr.Success {
		result = protocol.SuccessResult(*cr.Position)
	} else {
		result = protocol.FailureResult(cr.Error)
	}
	ch <- result
	p.metrics.PendingCommands(p.correlation.len())
}

func (p *Protocol) dispatchEvent(ee *wire.EventEnvelope) {
	q, ok := p.subscriptions.get(ee.StreamID)
	if !ok {
		p.logger.Debug("dropping event for unsubscribed stream", "streamId", ee.StreamID)
		p.metrics.OrphanFrame("event")
		return
	}
	q.push(protocol.Event{
		Position:  ee.Position,
		Type:      ee.EventType,
		Data:      ee.Data,
		Timestamp: ee.Timestamp,
	})
	p.metrics.SubscriptionQueueDepth(ee.StreamID, q.len())
}

// Send implements the Command Sender contract (spec.md §4.5) with the
// fixed 10-second deadline.
func (p *Protocol) Send(ctx context.Context, cmd protocol.Command) (protocol.CommandResult, error) {
	return p.send(ctx, cmd, DefaultDeadline)
}

// SendWithDeadline is the §13 opt-in escape hatch: identical to Send
// but with a caller-supplied deadline instead of the fixed 10s bound.
func (p *Protocol) SendWithDeadline(ctx context.Context, cmd protocol.Command, deadline time.Duration) (protocol.CommandResult, error) {
	return p.send(ctx, cmd, deadline)
}

func (p *Protocol) send(ctx context.Context, cmd protocol.Command, deadline time.Duration) (protocol.CommandResult, error) {
	ch, err := p.correlation.insert(cmd.ID)
	if err != nil {
		return protocol.CommandResult{}, err
	}
	p.metrics.PendingCommands(p.correlation.len())
	timeout := p.clock.After(deadline)

	raw, err := wire.Encode(wire.NewCommand(cmd.ID, cmd.Target, cmd.Name, cmd.Payload))
	if err != nil {
		p.correlation.remove(cmd.ID)
		return protocol.CommandResult{}, fmt.Errorf("encode command: %w", err)
	}

	start := p.clock.Now()
	if err := p.transport.Publish(ctx, transport.Frame{Kind: wire.TypeCommand, Payload: raw}); err != nil {
		p.correlation.remove(cmd.ID)
		return protocol.CommandResult{}, err
	}

	select {
	case result, ok := <-ch:
		if !ok {
			// Slot was closed out from under us by Protocol.Close.
			return protocol.CommandResult{}, protocol.ErrProtocolClosed
		}
		p.metrics.CommandLatency(p.clock.Now().Sub(start))
		return result, nil

	case <-timeout:
		p.correlation.remove(cmd.ID)
		p.metrics.PendingCommands(p.correlation.len())
		return protocol.CommandResult{}, &protocol.CommandTimeoutError{
			CommandID: cmd.ID,
			TimeoutMs: int(deadline / time.Millisecond),
		}

	case <-ctx.Done():
		p.correlation.remove(cmd.ID)
		p.metrics.PendingCommands(p.correlation.len())
		return protocol.CommandResult{}, ctx.Err()
	}
}

// Subscribe implements the Subscription Opener contract (spec.md
// §4.6) with the core's default unbounded queue.
func (p *Protocol) Subscribe(ctx context.Context, streamID string) (*Subscription, error) {
	return p.subscribe(ctx, streamID, p.subscriptions.open)
}

// SubscribeBounded is the §13 opt-in backpressure mode: the returned
// Subscription's queue drops its oldest event once it holds capacity
// events, instead of growing without bound.
func (p *Protocol) SubscribeBounded(ctx context.Context, streamID string, capacity int) (*Subscription, error) {
	return p.subscribe(ctx, streamID, func(id string) (*eventQueue, error) {
		return p.subscriptions.openBounded(id, capacity)
	})
}

func (p *Protocol) subscribe(ctx context.Context, streamID string, open func(string) (*eventQueue, error)) (*Subscription, error) {
	q, err := open(streamID)
	if err != nil {
		return nil, err
	}

	raw, err := wire.Encode(wire.NewSubscribe(streamID))
	if err != nil {
		p.subscriptions.close(streamID)
		return nil, fmt.Errorf("encode subscribe: %w", err)
	}

	if err := p.transport.Publish(ctx, transport.Frame{Kind: wire.TypeSubscribe, Payload: raw}); err != nil {
		p.subscriptions.close(streamID)
		return nil, err
	}

	return &Subscription{streamID: streamID, queue: q, table: p.subscriptions, metrics: p.metrics}, nil
}

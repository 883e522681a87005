package client

import (
	"context"
	"sync"

	"github.com/nugget/eventbridge/internal/protocol"
)

// Subscription is the lazy, potentially-infinite sequence of events
// handed back by Subscribe (spec.md §4.6, §9). It is pull-based:
// Next suspends until the next event arrives, the sequence is closed,
// or ctx ends.
type Subscription struct {
	streamID  string
	queue     *eventQueue
	table     *subscriptionTable
	metrics   Metrics
	closeOnce sync.Once
}

// StreamID returns the stream id this subscription was opened for.
func (s *Subscription) StreamID() string { return s.streamID }

// Next blocks until an event is available, the subscription is
// closed (returning protocol.ErrSubscriptionClosed), or ctx ends.
func (s *Subscription) Next(ctx context.Context) (protocol.Event, error) {
	for {
		if e, ok := s.queue.pop(); ok {
			s.metrics.SubscriptionQueueDepth(s.streamID, s.queue.len())
			return e, nil
		}
		select {
		case _, open := <-s.queue.notify:
			if !open {
				return protocol.Event{}, protocol.ErrSubscriptionClosed
			}
		case <-ctx.Done():
			return protocol.Event{}, ctx.Err()
		}
	}
}

// DroppedCount reports how many events a bounded subscription (see
// Protocol.SubscribeBounded) has discarded under its overflow policy.
// Always 0 for subscriptions opened with Subscribe.
func (s *Subscription) DroppedCount() int {
	return s.queue.droppedCount()
}

// Close unregisters the subscription's queue and ends the sequence:
// subsequent inbound events for this stream id are dropped by the
// demultiplexer rather than delivered (spec.md §5). Safe to call more
// than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.table.close(s.streamID)
	})
}

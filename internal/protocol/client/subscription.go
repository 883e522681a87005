package client

import (
	"sync"

	"github.com/nugget/eventbridge/internal/protocol"
)

const eventQueueBuffer = 64

// eventQueue is the unbounded-by-default FIFO queue backing one
// subscription's lazy sequence (spec.md §3, §9). Events are held in a
// slice that push grows on demand, and notify is only a one-slot
// wake-up signal, so a burst never blocks the demultiplexer, matching the "unbounded
// subscription queues" Non-goal this core keeps (see SPEC_FULL.md §1).
type eventQueue struct {
	mu      sync.Mutex
	events  []protocol.Event
	notify  chan struct{}
	closed  bool
	maxLen  int // 0 = unbounded (the core's default, spec.md §9)
	dropped int
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

// newBoundedEventQueue returns a queue that applies a drop-oldest
// overflow policy once it holds capacity events: the §13 opt-in
// backpressure mode for callers that want a bound without changing the
// core's default unbounded behavior.
func newBoundedEventQueue(capacity int) *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1), maxLen: capacity}
}

func (q *eventQueue) push(e protocol.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.maxLen > 0 && len(q.events) >= q.maxLen {
		q.events = q.events[1:]
		q.dropped++
	}
	q.events = append(q.events, e)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// droppedCount reports how many events this queue has discarded under
// its bounded overflow policy (always 0 for unbounded queues).
func (q *eventQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// len reports how many events are currently queued, for the
// eventbridge_client_subscription_queue_depth gauge.
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// pop removes and returns the oldest queued event, if any.
func (q *eventQueue) pop() (protocol.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return protocol.Event{}, false
	}
	e := q.events[0]
	q.events = q.events[1:]
	return e, true
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// subscriptionTable maps a stream id to its event queue. Operations
// mirror the correlation table's concurrency discipline.
type subscriptionTable struct {
	mu      sync.Mutex
	streams map[string]*eventQueue
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{streams: make(map[string]*eventQueue)}
}

// open registers a fresh queue for streamID. It fails with
// *protocol.DuplicateSubscriptionError if streamID is already
// subscribed on this instance, per the resolved "subscribing twice"
// open question (spec.md §9).
func (t *subscriptionTable) open(streamID string) (*eventQueue, error) {
	return t.openQueue(streamID, newEventQueue())
}

// openBounded is the §13 opt-in variant: same rejection semantics as
// open, but the registered queue drops its oldest event once capacity
// is reached instead of growing without bound.
func (t *subscriptionTable) openBounded(streamID string, capacity int) (*eventQueue, error) {
	return t.openQueue(streamID, newBoundedEventQueue(capacity))
}

func (t *subscriptionTable) openQueue(streamID string, q *eventQueue) (*eventQueue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.streams[streamID]; exists {
		return nil, &protocol.DuplicateSubscriptionError{StreamID: streamID}
	}
	t.streams[streamID] = q
	return q, nil
}

// get looks up the queue for streamID without removing it.
func (t *subscriptionTable) get(streamID string) (*eventQueue, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q, ok := t.streams[streamID]
	return q, ok
}

// close drops streamID's entry and closes its queue, signaling
// end-of-sequence to the consumer.
func (t *subscriptionTable) close(streamID string) {
	t.mu.Lock()
	q, ok := t.streams[streamID]
	if ok {
		delete(t.streams, streamID)
	}
	t.mu.Unlock()
	if ok {
		q.close()
	}
}

// streamIDs returns a snapshot of currently active stream ids.
func (t *subscriptionTable) streamIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.streams))
	for id := range t.streams {
		out = append(out, id)
	}
	return out
}

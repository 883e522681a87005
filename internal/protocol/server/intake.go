package server

import (
	"sync"

	"github.com/nugget/eventbridge/internal/protocol"
)

// commandQueue is the single, process-wide, unbounded FIFO the
// application drains as its lazy sequence of inbound commands (spec.md
// §4.8, §9's "lazy sequences are backed by unbounded FIFO queues").
// Ordering is preserved per connection because each connection's
// reader goroutine pushes serially; there is no ordering guarantee
// across connections, matching spec.md §5.
type commandQueue struct {
	mu     sync.Mutex
	items  []protocol.InboundCommand
	notify chan struct{}
	closed bool
}

func newCommandQueue() *commandQueue {
	return &commandQueue{notify: make(chan struct{}, 1)}
}

func (q *commandQueue) push(cmd protocol.InboundCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, cmd)
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *commandQueue) pop() (protocol.InboundCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return protocol.InboundCommand{}, false
	}
	cmd := q.items[0]
	q.items = q.items[1:]
	return cmd, true
}

func (q *commandQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

package client

import (
	"sync"

	"github.com/nugget/eventbridge/internal/protocol"
)

// resultChan is the one-shot, write-once result slot from spec.md §3's
// PendingCommand: buffered by one so the demultiplexer's write never
// blocks even if the waiter has already given up (timeout/cancel).
type resultChan chan protocol.CommandResult

// correlationTable maps a command id to its pending result slot. All
// operations are safe for concurrent use; it is the only place
// command-id state lives (spec.md §5's shared-resource policy).
type correlationTable struct {
	mu      sync.Mutex
	pending map[string]resultChan
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{pending: make(map[string]resultChan)}
}

// insert creates and registers a fresh slot for id. It fails with
// *protocol.DuplicateCommandError if id is already pending, per the
// resolved "duplicate command ids" open question (spec.md §9): the
// original waiter is left untouched.
func (t *correlationTable) insert(id string) (resultChan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.pending[id]; exists {
		return nil, &protocol.DuplicateCommandError{CommandID: id}
	}
	ch := make(resultChan, 1)
	t.pending[id] = ch
	return ch, nil
}

// take atomically removes and returns the slot for id, if present.
// Used by the demultiplexer to deliver exactly one resolution per id
// even under duplicate or late inbound frames.
func (t *correlationTable) take(id string) (resultChan, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return ch, ok
}

// remove idempotently drops id's slot without returning it. Used by
// the sender on timeout/cancellation/transport-failure cleanup.
func (t *correlationTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, id)
}

// len reports the number of currently pending commands, for the admin
// HTTP debug endpoint and metrics.
func (t *correlationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// ids returns a snapshot of currently pending command ids.
func (t *correlationTable) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	return out
}

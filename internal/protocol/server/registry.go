// Package server implements the server-side protocol engine (spec.md
// §4.7-§4.9): the subscription registry, the command intake queue, and
// the result/event router. It is modeled on the teacher project's
// internal/events.Bus — a map-of-channels with a non-blocking publish —
// generalized from a single fan-out channel to a per-stream connection
// set and from operational telemetry events to protocol commands and
// domain events.
package server

import "sync"

// registry maps a stream id to the set of connection ids currently
// subscribed to it (spec.md §3's ConnectionSubscriptionSet, §4.7).
type registry struct {
	mu      sync.RWMutex
	streams map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{streams: make(map[string]map[string]struct{})}
}

// subscribe adds connID to streamID's subscriber set. Idempotent: a
// connection subscribing twice to the same stream is a no-op, not an
// error (the server side has no "already subscribed" rejection — that
// rule belongs to the client-side subscription table, spec.md §4.3).
func (r *registry) subscribe(streamID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.streams[streamID]
	if !ok {
		set = make(map[string]struct{})
		r.streams[streamID] = set
	}
	set[connID] = struct{}{}
}

// subscribers returns a snapshot of connection ids subscribed to
// streamID. Empty (nil-safe) if nothing is subscribed.
func (r *registry) subscribers(streamID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.streams[streamID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// removeConnection drops connID from every stream's subscriber set,
// per spec.md §4.7's connection-termination cleanup rule.
func (r *registry) removeConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for streamID, set := range r.streams {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.streams, streamID)
		}
	}
}

// streamCount reports how many distinct streams currently have at
// least one subscriber, for the subscribed-streams metric.
func (r *registry) streamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// streamIDs returns a snapshot of every stream id with at least one
// subscriber, for the admin debug endpoint.
func (r *registry) streamIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.streams))
	for id := range r.streams {
		out = append(out, id)
	}
	return out
}

package client

import (
	"log/slog"
	"time"

	"github.com/nugget/eventbridge/internal/clock"
)

// Metrics is the narrow observability hook the client engine calls
// into. obsmetrics.ClientRegistry implements it with Prometheus collectors;
// noopMetrics is the default when no recorder is configured.
type Metrics interface {
	PendingCommands(n int)
	SubscriptionQueueDepth(streamID string, n int)
	CommandLatency(d time.Duration)
	DecodeFailure()
	OrphanFrame(kind string)
}

type noopMetrics struct{}

func (noopMetrics) PendingCommands(int)                {}
func (noopMetrics) SubscriptionQueueDepth(string, int) {}
func (noopMetrics) CommandLatency(time.Duration)       {}
func (noopMetrics) DecodeFailure()                     {}
func (noopMetrics) OrphanFrame(string)                 {}

// Option configures a Protocol at construction time.
type Option func(*Protocol)

// WithLogger sets the structured logger used for recovered protocol
// errors and lifecycle messages. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Protocol) { p.logger = logger }
}

// WithClock substitutes the time source the command deadline is
// measured against. Tests use a *clock.Virtual; production leaves the
// default clock.Real.
func WithClock(c clock.Clock) Option {
	return func(p *Protocol) { p.clock = c }
}

// WithMetrics wires a Metrics recorder (see internal/obsmetrics).
func WithMetrics(m Metrics) Option {
	return func(p *Protocol) { p.metrics = m }
}

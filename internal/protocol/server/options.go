package server

import "log/slog"

// Metrics is the narrow observability hook the server engine calls
// into. obsmetrics.ServerRegistry implements it with Prometheus
// collectors; noopMetrics is the default when no recorder is wired.
type Metrics interface {
	PendingCommands(n int)
	SubscribedStreams(n int)
	DecodeFailure()
	EventDroppedNoSubscribers()
}

type noopMetrics struct{}

func (noopMetrics) PendingCommands(int)          {}
func (noopMetrics) SubscribedStreams(int)        {}
func (noopMetrics) DecodeFailure()               {}
func (noopMetrics) EventDroppedNoSubscribers()   {}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger sets the structured logger used for per-connection
// lifecycle and recovered decode errors. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics wires a Metrics recorder (see internal/obsmetrics).
func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

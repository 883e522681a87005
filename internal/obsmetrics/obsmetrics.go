// Package obsmetrics wires the client and server protocol engines'
// narrow Metrics interfaces to Prometheus collectors, in the style of
// the go-server-3 example's internal/metrics package: a plain struct
// of collectors plus a promhttp handler. Registered
// at construction time on the prometheus.Registerer passed in, so
// cmd/eventbridge can choose prometheus.DefaultRegisterer or a private
// one per test.
package obsmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClientRegistry implements internal/protocol/client.Metrics.
type ClientRegistry struct {
	pendingCommands        prometheus.Gauge
	subscriptionQueueDepth *prometheus.GaugeVec
	commandLatency         prometheus.Histogram
	decodeFailures         prometheus.Counter
	orphanFrames           *prometheus.CounterVec
}

// NewClientRegistry creates and registers the client-side collectors
// on reg.
func NewClientRegistry(reg prometheus.Registerer) *ClientRegistry {
	factory := prometheus.WrapRegistererWithPrefix("eventbridge_client_", reg)
	c := &ClientRegistry{
		pendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_commands",
			Help: "Number of commands awaiting a result on this protocol instance",
		}),
		subscriptionQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "subscription_queue_depth",
			Help: "Number of buffered events waiting to be read from a subscription",
		}, []string{"stream_id"}),
		commandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "command_latency_seconds",
			Help:    "Time from Send to a resolved command result",
			Buckets: prometheus.DefBuckets,
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decode_failures_total",
			Help: "Total inbound frames that failed envelope decoding",
		}),
		orphanFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orphan_frames_total",
			Help: "Total inbound frames that decoded but matched no pending command or subscription",
		}, []string{"kind"}),
	}
	factory.MustRegister(c.pendingCommands, c.subscriptionQueueDepth, c.commandLatency, c.decodeFailures, c.orphanFrames)
	return c
}

func (c *ClientRegistry) PendingCommands(n int) { c.pendingCommands.Set(float64(n)) }
func (c *ClientRegistry) SubscriptionQueueDepth(streamID string, n int) {
	c.subscriptionQueueDepth.WithLabelValues(streamID).Set(float64(n))
}
func (c *ClientRegistry) CommandLatency(d time.Duration) { c.commandLatency.Observe(d.Seconds()) }
func (c *ClientRegistry) DecodeFailure()                 { c.decodeFailures.Inc() }
func (c *ClientRegistry) OrphanFrame(kind string)        { c.orphanFrames.WithLabelValues(kind).Inc() }

// ServerRegistry implements internal/protocol/server.Metrics.
type ServerRegistry struct {
	pendingCommands          prometheus.Gauge
	subscribedStreams        prometheus.Gauge
	decodeFailures           prometheus.Counter
	eventsDroppedNoSubscriber prometheus.Counter
}

// NewServerRegistry creates and registers the server-side collectors
// on reg.
func NewServerRegistry(reg prometheus.Registerer) *ServerRegistry {
	factory := prometheus.WrapRegistererWithPrefix("eventbridge_server_", reg)
	s := &ServerRegistry{
		pendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pending_commands",
			Help: "Number of commands queued for the application but not yet drained",
		}),
		subscribedStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subscribed_streams",
			Help: "Number of distinct stream ids with at least one active subscriber",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decode_failures_total",
			Help: "Total inbound frames that failed envelope decoding",
		}),
		eventsDroppedNoSubscriber: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_dropped_no_subscriber_total",
			Help: "Total published events dropped because their stream had no subscribers",
		}),
	}
	factory.MustRegister(s.pendingCommands, s.subscribedStreams, s.decodeFailures, s.eventsDroppedNoSubscriber)
	return s
}

func (s *ServerRegistry) PendingCommands(n int)    { s.pendingCommands.Set(float64(n)) }
func (s *ServerRegistry) SubscribedStreams(n int)  { s.subscribedStreams.Set(float64(n)) }
func (s *ServerRegistry) DecodeFailure()           { s.decodeFailures.Inc() }
func (s *ServerRegistry) EventDroppedNoSubscribers() { s.eventsDroppedNoSubscriber.Inc() }

// Handler exposes the registry's collectors in the Prometheus text
// exposition format, ready to mount on an admin HTTP router.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

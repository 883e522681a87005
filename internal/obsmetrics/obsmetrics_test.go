package obsmetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestClientRegistry_RecordsPendingCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewClientRegistry(reg)

	c.PendingCommands(3)
	if got := gaugeValue(t, c.pendingCommands); got != 3 {
		t.Fatalf("pendingCommands = %v, want 3", got)
	}
}

func TestClientRegistry_CommandLatencyDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewClientRegistry(reg)
	c.CommandLatency(50 * time.Millisecond)
	c.DecodeFailure()
	c.OrphanFrame("event")
	c.SubscriptionQueueDepth("user-123", 2)
}

func TestServerRegistry_RecordsSubscribedStreams(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServerRegistry(reg)

	s.SubscribedStreams(5)
	if got := gaugeValue(t, s.subscribedStreams); got != 5 {
		t.Fatalf("subscribedStreams = %v, want 5", got)
	}

	s.PendingCommands(1)
	s.DecodeFailure()
	s.EventDroppedNoSubscribers()
}

func TestNewClientRegistry_RegistersDistinctCollectorsPerInstance(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	// Registering on two independent registries must not panic with a
	// duplicate-collector error — each NewClientRegistry call creates
	// its own collector instances.
	NewClientRegistry(reg1)
	NewClientRegistry(reg2)
}

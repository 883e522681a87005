package mqtttransport

import (
	"testing"

	"github.com/nugget/eventbridge/internal/transport"
)

func TestTopicHelpers(t *testing.T) {
	if got := toServerTopic("eventbridge", "inst-1"); got != "eventbridge/inst-1/to-server" {
		t.Errorf("toServerTopic() = %q", got)
	}
	if got := toClientTopic("eventbridge", "inst-1"); got != "eventbridge/inst-1/to-client" {
		t.Errorf("toClientTopic() = %q", got)
	}
	if got := broadcastTopic("eventbridge"); got != "eventbridge/broadcast/to-client" {
		t.Errorf("broadcastTopic() = %q", got)
	}
}

func TestStripTopicPrefix(t *testing.T) {
	parts := stripTopicPrefix("eventbridge/inst-1/to-server")
	if len(parts) != 3 || parts[0] != "eventbridge" || parts[1] != "inst-1" || parts[2] != "to-server" {
		t.Fatalf("stripTopicPrefix() = %v", parts)
	}
}

func TestListener_DispatchIgnoresTopicsNotEndingInToServer(t *testing.T) {
	l := newTestListener()

	l.dispatch("eventbridge/inst-1/to-client", []byte(`{}`))

	if len(l.conns) != 0 {
		t.Fatalf("expected no connection created from a to-client topic, got %d", len(l.conns))
	}
}

func TestListener_DispatchDemultiplexesByInstanceID(t *testing.T) {
	l := newTestListener()

	l.dispatch("eventbridge/inst-1/to-server", []byte(`{"a":1}`))
	l.dispatch("eventbridge/inst-2/to-server", []byte(`{"b":2}`))
	l.dispatch("eventbridge/inst-1/to-server", []byte(`{"a":3}`))

	if len(l.conns) != 2 {
		t.Fatalf("expected 2 distinct connections, got %d", len(l.conns))
	}

	conn1 := l.conns["inst-1"]
	if conn1 == nil {
		t.Fatal("missing connection for inst-1")
	}
	first := <-conn1.inbound
	second := <-conn1.inbound
	if string(first.Payload) != `{"a":1}` || string(second.Payload) != `{"a":3}` {
		t.Fatalf("inst-1 frames = %q, %q", first.Payload, second.Payload)
	}

	select {
	case conn := <-l.accept:
		if conn.ID() != "inst-1" {
			t.Fatalf("first accepted connection id = %q, want inst-1", conn.ID())
		}
	default:
		t.Fatal("expected inst-1 to be pushed onto Accept")
	}
	select {
	case conn := <-l.accept:
		if conn.ID() != "inst-2" {
			t.Fatalf("second accepted connection id = %q, want inst-2", conn.ID())
		}
	default:
		t.Fatal("expected inst-2 to be pushed onto Accept")
	}
}

func newTestListener() *Listener {
	return &Listener{
		prefix: "eventbridge",
		conns:  make(map[string]*mqttConn),
		accept: make(chan transport.Connection, 16),
	}
}

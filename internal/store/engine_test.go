package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nugget/eventbridge/internal/protocol"
	"github.com/nugget/eventbridge/internal/protocol/server"
	"github.com/nugget/eventbridge/internal/transport"
	"github.com/nugget/eventbridge/internal/transport/memtransport"
	"github.com/nugget/eventbridge/internal/wire"
)

func TestEngine_CommandProducesResultAndEvent(t *testing.T) {
	st := openTestStore(t)
	listener := memtransport.NewListener()
	srv := server.New(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Close(ctx)
	})

	engine := NewEngine(st, srv, nil)
	engineCtx, engineCancel := context.WithCancel(context.Background())
	t.Cleanup(engineCancel)
	go engine.Run(engineCtx)

	cli := listener.Dial()

	subscribeRaw, _ := wire.Encode(wire.NewSubscribe("user-123"))
	if err := cli.Publish(context.Background(), transport.Frame{Kind: wire.TypeSubscribe, Payload: subscribeRaw}); err != nil {
		t.Fatalf("publish subscribe: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the server's reader register the subscription

	commandRaw, _ := wire.Encode(wire.NewCommand("c1", "user-123", "UserCreated", json.RawMessage(`{"name":"John Doe"}`)))
	if err := cli.Publish(context.Background(), transport.Frame{Kind: wire.TypeCommand, Payload: commandRaw}); err != nil {
		t.Fatalf("publish command: %v", err)
	}

	var sawResult, sawEvent bool
	deadline := time.After(2 * time.Second)
	for !sawResult || !sawEvent {
		select {
		case f := <-cli.Subscribe():
			env, err := wire.Decode(f.Payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch env.Type {
			case wire.TypeCommandResult:
				cr := env.CommandResult
				if cr.CommandID != "c1" || !cr.Success {
					t.Fatalf("unexpected result: %+v", cr)
				}
				if cr.Position == nil || cr.Position.EventNumber != 0 {
					t.Fatalf("unexpected position: %+v", cr.Position)
				}
				sawResult = true
			case wire.TypeEvent:
				if env.Event.EventType != "UserCreated" || env.Event.StreamID != "user-123" {
					t.Fatalf("unexpected event: %+v", env.Event)
				}
				sawEvent = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for result+event (sawResult=%v sawEvent=%v)", sawResult, sawEvent)
		}
	}

	events, err := st.Events(context.Background(), "user-123")
	if err != nil || len(events) != 1 {
		t.Fatalf("Events() = %v, %v", events, err)
	}
}

func TestEngine_DispatchRejectsCommandWithoutName(t *testing.T) {
	st := openTestStore(t)
	engine := NewEngine(st, server.New(memtransport.NewListener()), nil)

	result := engine.dispatch(context.Background(), protocol.Command{ID: "c1", Target: "user-123"})
	if result.Success {
		t.Fatal("expected failure for command with empty name")
	}

	events, err := st.Events(context.Background(), "user-123")
	if err != nil || len(events) != 0 {
		t.Fatalf("rejected command should not append an event: events=%v, err=%v", events, err)
	}
}

package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func roundTrip(t *testing.T, env *Envelope) *Envelope {
	t.Helper()
	raw, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", raw, err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		env  *Envelope
	}{
		{"command with payload", NewCommand("c1", "user-123", "UpdateProfile", json.RawMessage(`{"name":"John Doe"}`))},
		{"command with null payload", NewCommand("c2", "user-123", "Ping", json.RawMessage(`null`))},
		{"command with empty payload", NewCommand("c3", "user-123", "Ping", json.RawMessage(`{}`))},
		{"command with nested payload", NewCommand("c4", "user-123", "Bulk", json.RawMessage(`{"a":{"b":{"c":[1,2,3]}}}`))},
		{"subscribe", NewSubscribe("user-123")},
		{"success result with zero event number", NewSuccessResult("c1", Position{StreamID: "user-123", EventNumber: 0})},
		{"success result with nonzero event number", NewSuccessResult("c1", Position{StreamID: "user-123", EventNumber: 42})},
		{"failure result with empty error string", NewFailureResult("c2", "")},
		{"failure result with message", NewFailureResult("c2", "Validation failed: Name is required")},
		{"event", NewEvent("user-123", Position{StreamID: "user-123", EventNumber: 7}, "UserUpdated", json.RawMessage(`{"name":"John Doe"}`), ts)},
		{"event with null data", NewEvent("user-123", Position{StreamID: "user-123", EventNumber: 0}, "UserCreated", json.RawMessage(`null`), ts)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.env)
			want := tt.env

			if got.Type != want.Type {
				t.Fatalf("Type = %q, want %q", got.Type, want.Type)
			}

			switch want.Type {
			case TypeCommand:
				if got.Command.ID != want.Command.ID || got.Command.Target != want.Command.Target || got.Command.Name != want.Command.Name {
					t.Errorf("Command = %+v, want %+v", got.Command, want.Command)
				}
				if string(got.Command.Payload) != string(want.Command.Payload) {
					t.Errorf("Command.Payload = %s, want %s", got.Command.Payload, want.Command.Payload)
				}
			case TypeSubscribe:
				if *got.Subscribe != *want.Subscribe {
					t.Errorf("Subscribe = %+v, want %+v", got.Subscribe, want.Subscribe)
				}
			case TypeCommandResult:
				if got.CommandResult.CommandID != want.CommandResult.CommandID ||
					got.CommandResult.Success != want.CommandResult.Success ||
					got.CommandResult.Error != want.CommandResult.Error {
					t.Errorf("CommandResult = %+v, want %+v", got.CommandResult, want.CommandResult)
				}
				if want.CommandResult.Success {
					if got.CommandResult.Position == nil || *got.CommandResult.Position != *want.CommandResult.Position {
						t.Errorf("Position = %+v, want %+v", got.CommandResult.Position, want.CommandResult.Position)
					}
				}
			case TypeEvent:
				if got.Event.StreamID != want.Event.StreamID ||
					got.Event.Position != want.Event.Position ||
					got.Event.EventType != want.Event.EventType ||
					!got.Event.Timestamp.Equal(want.Event.Timestamp) {
					t.Errorf("Event = %+v, want %+v", got.Event, want.Event)
				}
			}
		})
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ping"}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	var verr *ValidationError
	if !asValidationError(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"command missing id", `{"type":"command","target":"t","name":"n","payload":{}}`},
		{"command missing target", `{"type":"command","id":"c1","name":"n","payload":{}}`},
		{"command missing name", `{"type":"command","id":"c1","target":"t","payload":{}}`},
		{"subscribe missing streamId", `{"type":"subscribe"}`},
		{"result success missing position", `{"type":"command_result","commandId":"c1","success":true}`},
		{"result failure missing error", `{"type":"command_result","commandId":"c1","success":false}`},
		{"result missing success", `{"type":"command_result","commandId":"c1"}`},
		{"event missing streamId", `{"type":"event","position":{"streamId":"s","eventNumber":0},"eventType":"X","timestamp":"2026-01-01T00:00:00Z"}`},
		{"event missing timestamp", `{"type":"event","streamId":"s","position":{"streamId":"s","eventNumber":0},"eventType":"X"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatalf("Decode(%s): expected error, got nil", tt.raw)
			}
		})
	}
}

func asValidationError(err error, target **ValidationError) bool {
	verr, ok := err.(*ValidationError)
	if ok {
		*target = verr
	}
	return ok
}

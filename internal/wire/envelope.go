// Package wire defines the four envelope variants that travel as the
// JSON payload of a single transport frame, and the total/fallible
// encode/decode functions between them and wire bytes.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminators for the envelope variants. Every envelope is a
// JSON object whose "type" field is one of these values; any other
// value is rejected by Decode.
const (
	TypeCommand        = "command"
	TypeSubscribe      = "subscribe"
	TypeCommandResult  = "command_result"
	TypeEvent          = "event"
)

// Position identifies a point in a stream.
type Position struct {
	StreamID    string `json:"streamId"`
	EventNumber int64  `json:"eventNumber"`
}

// Command is the client->server request envelope.
type Command struct {
	ID      string          `json:"id"`
	Target  string          `json:"target"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Subscribe is the client->server subscription-open envelope.
type Subscribe struct {
	StreamID string `json:"streamId"`
}

// CommandResultEnvelope is the server->client result envelope. Exactly
// one of Position/Error is populated, selected by Success.
type CommandResultEnvelope struct {
	CommandID string          `json:"commandId"`
	Success   bool            `json:"success"`
	Position  *Position       `json:"position,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// EventEnvelope is the server->client event-delivery envelope.
type EventEnvelope struct {
	StreamID  string          `json:"streamId"`
	Position  Position        `json:"position"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Envelope is the decoded form of any one of the four variants. Exactly
// one of the Command/Subscribe/CommandResult/Event fields is non-nil,
// selected by Type.
type Envelope struct {
	Type           string
	Command        *Command
	Subscribe      *Subscribe
	CommandResult  *CommandResultEnvelope
	Event          *EventEnvelope
}

// ValidationError reports why an inbound frame could not be decoded
// into a valid Envelope. It names the offending field so a debug log
// line can point at exactly what was wrong, and carries the raw bytes
// for forensics.
type ValidationError struct {
	Field  string
	Reason string
	Raw    []byte
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol validation: field %q: %s", e.Field, e.Reason)
}

// wireForm is the JSON shape shared by all four variants; decoding
// happens field-by-field after the discriminator is known.
type wireForm struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Target    string          `json:"target"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	StreamID  string          `json:"streamId"`
	CommandID string          `json:"commandId"`
	Success   *bool           `json:"success"`
	Position  *Position       `json:"position"`
	Error     *string         `json:"error"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp *time.Time      `json:"timestamp"`
}

// Decode parses raw into one of the four envelope variants. It fails
// with a *ValidationError on any unknown type, missing required field,
// or wrong-typed field. Decode never panics on malformed input.
func Decode(raw []byte) (*Envelope, error) {
	var w wireForm
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &ValidationError{Field: "type", Reason: err.Error(), Raw: raw}
	}

	switch w.Type {
	case TypeCommand:
		if w.ID == "" {
			return nil, &ValidationError{Field: "id", Reason: "required for command", Raw: raw}
		}
		if w.Target == "" {
			return nil, &ValidationError{Field: "target", Reason: "required for command", Raw: raw}
		}
		if w.Name == "" {
			return nil, &ValidationError{Field: "name", Reason: "required for command", Raw: raw}
		}
		return &Envelope{
			Type: TypeCommand,
			Command: &Command{
				ID:      w.ID,
				Target:  w.Target,
				Name:    w.Name,
				Payload: w.Payload,
			},
		}, nil

	case TypeSubscribe:
		if w.StreamID == "" {
			return nil, &ValidationError{Field: "streamId", Reason: "required for subscribe", Raw: raw}
		}
		return &Envelope{
			Type:      TypeSubscribe,
			Subscribe: &Subscribe{StreamID: w.StreamID},
		}, nil

	case TypeCommandResult:
		if w.CommandID == "" {
			return nil, &ValidationError{Field: "commandId", Reason: "required for command_result", Raw: raw}
		}
		if w.Success == nil {
			return nil, &ValidationError{Field: "success", Reason: "required for command_result", Raw: raw}
		}
		if *w.Success {
			if w.Position == nil {
				return nil, &ValidationError{Field: "position", Reason: "required when success=true", Raw: raw}
			}
		} else if w.Error == nil {
			return nil, &ValidationError{Field: "error", Reason: "required when success=false", Raw: raw}
		}
		cr := &CommandResultEnvelope{
			CommandID: w.CommandID,
			Success:   *w.Success,
		}
		if *w.Success {
			cr.Position = w.Position
		} else {
			cr.Error = *w.Error
		}
		return &Envelope{Type: TypeCommandResult, CommandResult: cr}, nil

	case TypeEvent:
		if w.StreamID == "" {
			return nil, &ValidationError{Field: "streamId", Reason: "required for event", Raw: raw}
		}
		if w.Position == nil {
			return nil, &ValidationError{Field: "position", Reason: "required for event", Raw: raw}
		}
		if w.EventType == "" {
			return nil, &ValidationError{Field: "eventType", Reason: "required for event", Raw: raw}
		}
		if w.Timestamp == nil {
			return nil, &ValidationError{Field: "timestamp", Reason: "required for event", Raw: raw}
		}
		return &Envelope{
			Type: TypeEvent,
			Event: &EventEnvelope{
				StreamID:  w.StreamID,
				Position:  *w.Position,
				EventType: w.EventType,
				Data:      w.Data,
				Timestamp: *w.Timestamp,
			},
		}, nil

	default:
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown envelope type %q", w.Type), Raw: raw}
	}
}

// Encode serializes env to its wire form. Encode is total: a correctly
// constructed Envelope (as produced by this package's constructors)
// always encodes successfully.
func Encode(env *Envelope) ([]byte, error) {
	switch env.Type {
	case TypeCommand:
		c := env.Command
		return json.Marshal(wireForm{
			Type:    TypeCommand,
			ID:      c.ID,
			Target:  c.Target,
			Name:    c.Name,
			Payload: c.Payload,
		})

	case TypeSubscribe:
		return json.Marshal(wireForm{
			Type:     TypeSubscribe,
			StreamID: env.Subscribe.StreamID,
		})

	case TypeCommandResult:
		cr := env.CommandResult
		w := wireForm{
			Type:      TypeCommandResult,
			CommandID: cr.CommandID,
			Success:   &cr.Success,
		}
		if cr.Success {
			w.Position = cr.Position
		} else {
			errStr := cr.Error
			w.Error = &errStr
		}
		return json.Marshal(w)

	case TypeEvent:
		e := env.Event
		ts := e.Timestamp
		return json.Marshal(wireForm{
			Type:      TypeEvent,
			StreamID:  e.StreamID,
			Position:  &e.Position,
			EventType: e.EventType,
			Data:      e.Data,
			Timestamp: &ts,
		})

	default:
		return nil, fmt.Errorf("wire: encode: unknown envelope type %q", env.Type)
	}
}

// NewCommand builds a command envelope ready for Encode.
func NewCommand(id, target, name string, payload json.RawMessage) *Envelope {
	return &Envelope{
		Type:    TypeCommand,
		Command: &Command{ID: id, Target: target, Name: name, Payload: payload},
	}
}

// NewSubscribe builds a subscribe envelope ready for Encode.
func NewSubscribe(streamID string) *Envelope {
	return &Envelope{Type: TypeSubscribe, Subscribe: &Subscribe{StreamID: streamID}}
}

// NewSuccessResult builds a successful command_result envelope.
func NewSuccessResult(commandID string, pos Position) *Envelope {
	return &Envelope{
		Type: TypeCommandResult,
		CommandResult: &CommandResultEnvelope{
			CommandID: commandID,
			Success:   true,
			Position:  &pos,
		},
	}
}

// NewFailureResult builds a failed command_result envelope.
func NewFailureResult(commandID, errMsg string) *Envelope {
	return &Envelope{
		Type: TypeCommandResult,
		CommandResult: &CommandResultEnvelope{
			CommandID: commandID,
			Success:   false,
			Error:     errMsg,
		},
	}
}

// NewEvent builds an event envelope ready for Encode.
func NewEvent(streamID string, pos Position, eventType string, data json.RawMessage, ts time.Time) *Envelope {
	return &Envelope{
		Type: TypeEvent,
		Event: &EventEnvelope{
			StreamID:  streamID,
			Position:  pos,
			EventType: eventType,
			Data:      data,
			Timestamp: ts,
		},
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/eventbridge/internal/protocol"
	"github.com/nugget/eventbridge/internal/protocol/server"
)

// Engine drains a server.Server's command intake and turns
// each inbound command into an event store append, demonstrating the
// full command -> event -> subscriber round trip the spec places out
// of scope as an external collaborator (spec.md §1). The routing rule
// is deliberately the simplest thing that's still a real aggregate:
// every command with a non-empty name and target appends one event of
// that name to its target stream.
type Engine struct {
	store  *EventStore
	srv    *server.Server
	logger *slog.Logger
}

// NewEngine wires store to srv. Call Run to start draining commands;
// Run blocks until ctx ends or the server closes.
func NewEngine(store *EventStore, srv *server.Server, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, srv: srv, logger: logger}
}

// Run drains InboundCommands one at a time, in the order
// Server.Commands delivers them, appending an event per command and
// routing the result back to the originating connection. It returns
// nil when ctx is cancelled or the command queue closes, and ctx's
// error when ctx ends any other way (such as its deadline passing).
func (e *Engine) Run(ctx context.Context) error {
	for {
		cmd, ok, err := e.srv.Commands(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}
		e.handle(ctx, cmd)
	}
}

func (e *Engine) handle(ctx context.Context, inbound protocol.InboundCommand) {
	cmd := inbound.Command
	result := e.dispatch(ctx, cmd)

	if err := e.store.recordCommand(ctx, cmd, result); err != nil {
		e.logger.Warn("failed to audit command", "commandId", cmd.ID, "error", err)
	}

	if err := e.srv.SendResult(ctx, inbound.ConnID, cmd.ID, result); err != nil {
		e.logger.Warn("failed to send command result", "commandId", cmd.ID, "error", err)
		return
	}

	if result.Success {
		if err := e.srv.PublishEvent(ctx, protocol.Event{
			Position:  result.Position,
			Type:      cmd.Name,
			Data:      cmd.Payload,
			Timestamp: time.Now(),
		}); err != nil {
			e.logger.Warn("failed to publish event", "streamId", result.Position.StreamID, "error", err)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, cmd protocol.Command) protocol.CommandResult {
	if cmd.Name == "" {
		return protocol.FailureResult("command name is required")
	}
	if cmd.Target == "" {
		return protocol.FailureResult("command target is required")
	}

	payload := cmd.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	pos, err := e.store.Append(ctx, cmd.Target, cmd.Name, payload)
	if err != nil {
		return protocol.FailureResult(fmt.Sprintf("append event: %v", err))
	}
	return protocol.SuccessResult(pos)
}

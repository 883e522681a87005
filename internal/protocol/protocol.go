// Package protocol holds the domain types and error taxonomy shared by
// the client and server protocol engines: Command, CommandResult,
// Event, and the structured errors from spec.md §7.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nugget/eventbridge/internal/wire"
)

// ErrSubscriptionClosed is returned by Subscription.Next once
// Subscription.Close or Protocol.Close has ended the lazy sequence (spec.md §4.10's
// Closed state). It is never returned for a server-initiated close —
// the current core has none.
var ErrSubscriptionClosed = errors.New("eventbridge: subscription closed")

// ErrProtocolClosed is returned by an in-flight Send whose pending
// slot was torn down by Protocol.Close rather than resolved,
// timed out, or cancelled.
var ErrProtocolClosed = errors.New("eventbridge: protocol closed")

// Position identifies a point in a stream (spec.md §3).
type Position = wire.Position

// Command is a caller-issued request targeting an aggregate; it
// expects exactly one CommandResult.
type Command struct {
	ID      string
	Target  string
	Name    string
	Payload json.RawMessage
}

// CommandResult is the tagged union spec.md §3 describes as
// Success{position} | Failure{error}. Exactly one of Position/Err is
// meaningful, selected by Success.
type CommandResult struct {
	Success  bool
	Position Position
	Err      string
}

// SuccessResult builds a successful CommandResult.
func SuccessResult(pos Position) CommandResult {
	return CommandResult{Success: true, Position: pos}
}

// FailureResult builds a failed CommandResult.
func FailureResult(errMsg string) CommandResult {
	return CommandResult{Success: false, Err: errMsg}
}

// Event is an immutable fact produced by the server and delivered
// through a subscription.
type Event struct {
	Position  Position
	Type      string
	Data      json.RawMessage
	Timestamp time.Time
}

// InboundCommand pairs a command with the id of the connection it
// arrived on, as drained from the server's command intake queue
// (spec.md §4.8). The application uses ConnID only to echo it back
// into SendResult; it carries no other meaning to the protocol.
type InboundCommand struct {
	ConnID  string
	Command Command
}

// CommandTimeoutError reports that a command's deadline elapsed before
// a matching result arrived (spec.md §6, §7).
type CommandTimeoutError struct {
	CommandID string
	TimeoutMs int
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %dms", e.CommandID, e.TimeoutMs)
}

// DuplicateCommandError reports an attempt to send a command whose id
// is already pending on this protocol instance (spec.md §9 resolves
// the "duplicate command ids" open question by rejecting at send time).
type DuplicateCommandError struct {
	CommandID string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command id %q already pending", e.CommandID)
}

// DuplicateSubscriptionError reports an attempt to open a second
// subscription for a stream id already active on this protocol
// instance (spec.md §9 resolves the "subscribing twice" open question
// by rejecting rather than silently overwriting).
type DuplicateSubscriptionError struct {
	StreamID string
}

func (e *DuplicateSubscriptionError) Error() string {
	return fmt.Sprintf("stream id %q already subscribed", e.StreamID)
}

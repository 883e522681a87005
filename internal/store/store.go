// Package store provides a minimal, concrete event store and aggregate
// engine demo: the spec places the event store out of scope as an
// external collaborator (spec.md §1), but this repository ships one
// real implementation so the server protocol engine has something to
// drive in its integration tests. Grounded on the teacher project's
// internal/memory/sqlite.go — database/sql plus a sqlite driver and
// transactional writes — with
// schema setup delegated to golang-migrate instead of an inline
// CREATE TABLE string.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/eventbridge/internal/protocol"
)

// EventStore is a SQLite-backed append-only log of events grouped by
// stream id, with a companion command_log audit table. It never
// imports internal/protocol/client or internal/protocol/server — only
// the shared protocol.Position/protocol.Event types — preserving the
// core's "opaque payload" contract (SPEC_FULL.md §11).
type EventStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at dsn and
// brings its schema up to date. Open appends WAL journal mode and a
// 5000 ms busy timeout to dsn as a query string before passing it to
// sql.Open, so dsn itself carries no query string of its own.
func Open(dsn string) (*EventStore, error) {
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &EventStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// Append records one new event on streamID, assigning it the next
// 0-based event number for that stream, and returns the resulting
// position (spec.md §3's Position{streamId, eventNumber}).
func (s *EventStore) Append(ctx context.Context, streamID, eventType string, data json.RawMessage) (protocol.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Position{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO streams (stream_id, next_event_num)
		VALUES (?, 0)
		ON CONFLICT(stream_id) DO NOTHING
	`, streamID); err != nil {
		return protocol.Position{}, fmt.Errorf("ensure stream: %w", err)
	}

	var nextNum int64
	if err := tx.QueryRowContext(ctx, `
		SELECT next_event_num FROM streams WHERE stream_id = ?
	`, streamID).Scan(&nextNum); err != nil {
		return protocol.Position{}, fmt.Errorf("read stream cursor: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (stream_id, event_num, event_type, data, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, streamID, nextNum, eventType, string(data), now); err != nil {
		return protocol.Position{}, fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE streams SET next_event_num = ? WHERE stream_id = ?
	`, nextNum+1, streamID); err != nil {
		return protocol.Position{}, fmt.Errorf("advance stream cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return protocol.Position{}, fmt.Errorf("commit: %w", err)
	}

	return protocol.Position{StreamID: streamID, EventNumber: nextNum}, nil
}

// Events returns every recorded event for streamID in arrival order.
func (s *EventStore) Events(ctx context.Context, streamID string) ([]protocol.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_num, event_type, data, recorded_at
		FROM events
		WHERE stream_id = ?
		ORDER BY event_num ASC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []protocol.Event
	for rows.Next() {
		var (
			num       int64
			eventType string
			data      string
			recorded  time.Time
		)
		if err := rows.Scan(&num, &eventType, &data, &recorded); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, protocol.Event{
			Position:  protocol.Position{StreamID: streamID, EventNumber: num},
			Type:      eventType,
			Data:      json.RawMessage(data),
			Timestamp: recorded,
		})
	}
	return out, rows.Err()
}

// recordCommand appends an audit row to command_log. Failure to audit
// never fails the command itself; it is logged by the caller.
func (s *EventStore) recordCommand(ctx context.Context, cmd protocol.Command, result protocol.CommandResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_log (command_id, target, name, success, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(command_id) DO NOTHING
	`, cmd.ID, cmd.Target, cmd.Name, result.Success, nullableError(result), time.Now().UTC())
	return err
}

func nullableError(result protocol.CommandResult) any {
	if result.Success {
		return nil
	}
	return result.Err
}

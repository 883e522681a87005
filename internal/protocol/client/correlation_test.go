package client

import (
	"testing"

	"github.com/nugget/eventbridge/internal/protocol"
)

func TestCorrelationTable_InsertRejectsDuplicate(t *testing.T) {
	ct := newCorrelationTable()

	if _, err := ct.insert("a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := ct.insert("a")
	if err == nil {
		t.Fatal("expected duplicate rejection")
	}
	if _, ok := err.(*protocol.DuplicateCommandError); !ok {
		t.Fatalf("expected *protocol.DuplicateCommandError, got %T", err)
	}
}

func TestCorrelationTable_TakeRemovesEntry(t *testing.T) {
	ct := newCorrelationTable()
	ch, _ := ct.insert("a")

	got, ok := ct.take("a")
	if !ok || got != ch {
		t.Fatalf("take() = %v, %v", got, ok)
	}
	if _, ok := ct.take("a"); ok {
		t.Fatal("second take should miss")
	}
	if ct.len() != 0 {
		t.Fatalf("len() = %d, want 0", ct.len())
	}
}

func TestCorrelationTable_RemoveIsIdempotent(t *testing.T) {
	ct := newCorrelationTable()
	ct.insert("a")
	ct.remove("a")
	ct.remove("a") // must not panic
	if ct.len() != 0 {
		t.Fatalf("len() = %d, want 0", ct.len())
	}
}

func TestCorrelationTable_IDsSnapshot(t *testing.T) {
	ct := newCorrelationTable()
	ct.insert("a")
	ct.insert("b")

	ids := ct.ids()
	if len(ids) != 2 {
		t.Fatalf("ids() = %v, want 2 entries", ids)
	}
}

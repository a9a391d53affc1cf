package persistence_test

import (
	"testing"
	"time"

	"github.com/aiswarm/swarmd/internal/persistence"
)

func TestAppendAndListEvents(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, store, func(w *persistence.WriteScope) error {
		if err := persistence.AppendEvent(w, persistence.EventLogEntry{
			EventType: "TaskCreated", Timestamp: base, EntityID: strPtr("t1"), EntityType: strPtr("task"),
			Severity: persistence.SeverityInformation, Payload: `{"id":"t1"}`,
		}); err != nil {
			return err
		}
		return persistence.AppendEvent(w, persistence.EventLogEntry{
			EventType: "AgentUnhealthy", Timestamp: base.Add(time.Minute), EntityID: strPtr("a1"), EntityType: strPtr("agent"),
			Severity: persistence.SeverityWarning, Payload: `{"id":"a1"}`,
		})
	})

	op := store.BeginOperation(testContext())
	defer op.Close()
	got, err := persistence.ListEvents(op.Read(), "", "", base.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].EventType != "AgentUnhealthy" {
		t.Fatalf("expected newest first, got %q", got[0].EventType)
	}
}

func TestListEventsFiltersByEntity(t *testing.T) {
	store := openTestStore(t)
	base := time.Now()
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		if err := persistence.AppendEvent(w, persistence.EventLogEntry{
			EventType: "TaskCreated", Timestamp: base, EntityID: strPtr("t1"), EntityType: strPtr("task"),
			Severity: persistence.SeverityInformation, Payload: "{}",
		}); err != nil {
			return err
		}
		return persistence.AppendEvent(w, persistence.EventLogEntry{
			EventType: "TaskCreated", Timestamp: base, EntityID: strPtr("t2"), EntityType: strPtr("task"),
			Severity: persistence.SeverityInformation, Payload: "{}",
		})
	})

	op := store.BeginOperation(testContext())
	defer op.Close()
	got, err := persistence.ListEvents(op.Read(), "task", "t1", base.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(got) != 1 || got[0].EntityID == nil || *got[0].EntityID != "t1" {
		t.Fatalf("expected only t1's event, got %+v", got)
	}
}

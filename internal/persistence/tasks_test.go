package persistence_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/google/uuid"
)

func newTestTask(id string, priority persistence.Priority, persona *string, createdAt time.Time) persistence.WorkItem {
	return persistence.WorkItem{
		ID:          id,
		Status:      persistence.TaskPending,
		PersonaID:   persona,
		Description: "do the thing " + id,
		Priority:    priority,
		CreatedAt:   createdAt,
	}
}

func TestClaimNextPendingTaskOrdersByPriorityThenAge(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mustWrite(t, store, func(w *persistence.WriteScope) error {
		if err := persistence.CreateTask(w, newTestTask("low-old", persistence.PriorityLow, nil, base)); err != nil {
			return err
		}
		if err := persistence.CreateTask(w, newTestTask("high-new", persistence.PriorityHigh, nil, base.Add(time.Minute))); err != nil {
			return err
		}
		return persistence.CreateTask(w, newTestTask("high-old", persistence.PriorityHigh, nil, base))
	})

	var claimed persistence.WorkItem
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		var err error
		claimed, err = persistence.ClaimNextPendingTask(w, "agent-1", "", base.Add(time.Hour))
		return err
	})
	if claimed.ID != "high-old" {
		t.Fatalf("expected 'high-old' claimed first (priority then age), got %q", claimed.ID)
	}
}

func TestClaimNextPendingTaskRespectsPersonaTag(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	reviewer := "reviewer"

	mustWrite(t, store, func(w *persistence.WriteScope) error {
		if err := persistence.CreateTask(w, newTestTask("tagged", persistence.PriorityNormal, &reviewer, now)); err != nil {
			return err
		}
		return persistence.CreateTask(w, newTestTask("untagged", persistence.PriorityNormal, nil, now.Add(time.Second)))
	})

	var claimed persistence.WorkItem
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		var err error
		claimed, err = persistence.ClaimNextPendingTask(w, "agent-builder", persistence.NormalizePersona("builder"), now.Add(time.Hour))
		return err
	})
	if claimed.ID != "untagged" {
		t.Fatalf("expected 'untagged' to be eligible for builder, got %q", claimed.ID)
	}
}

func TestClaimNextPendingTaskNoneEligible(t *testing.T) {
	store := openTestStore(t)
	op := store.BeginOperation(testContext())
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		t.Fatalf("write scope: %v", err)
	}
	if _, err := persistence.ClaimNextPendingTask(w, "agent-1", "", time.Now()); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestConcurrentClaimsNeverDoubleAssign races N goroutines, each opening its
// own OperationScope/transaction, against a single pending task. Exactly one
// must win.
func TestConcurrentClaimsNeverDoubleAssign(t *testing.T) {
	store := openTestStore(t)
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		return persistence.CreateTask(w, newTestTask("contested", persistence.PriorityNormal, nil, time.Now()))
	})

	const workers = 8
	var wg sync.WaitGroup
	claims := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			op := store.BeginOperation(testContext())
			defer op.Close()
			w, err := op.Write()
			if err != nil {
				return
			}
			task, err := persistence.ClaimNextPendingTask(w, uuid.NewString(), "", time.Now())
			if err != nil {
				return
			}
			if err := op.Complete(); err != nil {
				return
			}
			claims <- task.ID
		}(i)
	}
	wg.Wait()
	close(claims)

	count := 0
	for range claims {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 successful claim out of %d racers, got %d", workers, count)
	}
}

func TestReportTaskCompletionRequiresInProgress(t *testing.T) {
	store := openTestStore(t)
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		return persistence.CreateTask(w, newTestTask("t1", persistence.PriorityNormal, nil, time.Now()))
	})

	op := store.BeginOperation(testContext())
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		t.Fatalf("write scope: %v", err)
	}
	if err := persistence.ReportTaskCompletion(w, "t1", true, "done", time.Now()); err != persistence.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState for a still-Pending task, got %v", err)
	}
}

func TestReportTaskCompletionSuccessAndFailure(t *testing.T) {
	store := openTestStore(t)
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		return persistence.CreateTask(w, newTestTask("t1", persistence.PriorityNormal, nil, time.Now()))
	})
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		_, err := persistence.ClaimNextPendingTask(w, "agent-1", "", time.Now())
		return err
	})
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		return persistence.ReportTaskCompletion(w, "t1", true, "all good", time.Now())
	})

	op := store.BeginOperation(testContext())
	defer op.Close()
	got, err := persistence.GetTask(op.Read(), "t1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != persistence.TaskCompleted {
		t.Fatalf("expected Completed, got %s", got.Status)
	}
	if got.Result == nil || *got.Result != "all good" {
		t.Fatalf("expected result 'all good', got %v", got.Result)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt set")
	}
}

func TestGetTasksByStatusOrdersByCreatedAt(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mustWrite(t, store, func(w *persistence.WriteScope) error {
		if err := persistence.CreateTask(w, newTestTask("second", persistence.PriorityNormal, nil, base.Add(time.Minute))); err != nil {
			return err
		}
		return persistence.CreateTask(w, newTestTask("first", persistence.PriorityNormal, nil, base))
	})

	op := store.BeginOperation(testContext())
	defer op.Close()
	got, err := persistence.GetTasksByStatus(op.Read(), persistence.TaskPending)
	if err != nil {
		t.Fatalf("get tasks by status: %v", err)
	}
	if len(got) != 2 || got[0].ID != "first" || got[1].ID != "second" {
		t.Fatalf("expected [first second], got %+v", got)
	}
}

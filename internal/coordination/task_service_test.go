package coordination_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

func newTaskServiceForTest(t *testing.T) (*coordination.TaskService, *coordination.AgentService, *events.TaskBus) {
	t.Helper()
	store, err := persistence.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	agentBus := events.NewAgentBus(bus.Options{Capacity: 16})
	t.Cleanup(func() { agentBus.Close() })
	taskBus := events.NewTaskBus(bus.Options{Capacity: 16})
	t.Cleanup(func() { taskBus.Close() })

	logger := coordination.NewEventLogger(clock.New(), nil)
	agents := coordination.NewAgentService(store, agentBus, logger, clock.New())
	tasks := coordination.NewTaskService(store, taskBus, logger, clock.New())
	return tasks, agents, taskBus
}

func registerAgent(t *testing.T, agents *coordination.AgentService, persona string) string {
	t.Helper()
	id, err := agents.Register(context.Background(), coordination.RegisterRequest{
		PersonaID: persona, AgentType: "worker", WorkingDirectory: "/tmp",
	})
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	return id
}

func TestTaskService_CreateRejectsBlankDescription(t *testing.T) {
	tasks, _, _ := newTaskServiceForTest(t)
	if _, err := tasks.Create(context.Background(), coordination.CreateRequest{}); err == nil {
		t.Fatal("expected error for blank description")
	}
}

func TestTaskService_GetNextUnknownAgentReturnsNotFound(t *testing.T) {
	tasks, _, _ := newTaskServiceForTest(t)
	_, err := tasks.GetNext(context.Background(), "does-not-exist", time.Second, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestTaskService_GetNextTimesOutWithNoPendingTask(t *testing.T) {
	tasks, agents, _ := newTaskServiceForTest(t)
	ctx := context.Background()
	agentID := registerAgent(t, agents, "alpha")

	result, err := tasks.GetNext(ctx, agentID, 30*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("get next: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut true when no task is pending")
	}
}

func TestTaskService_CreateClaimCompleteRoundTrip(t *testing.T) {
	tasks, agents, _ := newTaskServiceForTest(t)
	ctx := context.Background()
	persona := "alpha"
	agentID := registerAgent(t, agents, persona)

	taskID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "do the thing", PersonaID: &persona})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := tasks.GetNext(ctx, agentID, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("get next: %v", err)
	}
	if result.TimedOut || result.TaskID != taskID {
		t.Fatalf("expected to claim %s, got %+v", taskID, result)
	}

	status, err := tasks.GetStatus(ctx, taskID)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != persistence.TaskInProgress {
		t.Fatalf("expected InProgress after claim, got %s", status.Status)
	}

	if err := tasks.ReportCompletion(ctx, taskID, agentID, true, "done"); err != nil {
		t.Fatalf("report completion: %v", err)
	}

	status, err = tasks.GetStatus(ctx, taskID)
	if err != nil {
		t.Fatalf("get status after completion: %v", err)
	}
	if status.Status != persistence.TaskCompleted {
		t.Fatalf("expected Completed, got %s", status.Status)
	}
}

func TestTaskService_ReportCompletionRejectsWrongAgent(t *testing.T) {
	tasks, agents, _ := newTaskServiceForTest(t)
	ctx := context.Background()
	persona := "alpha"
	agentID := registerAgent(t, agents, persona)
	otherAgentID := registerAgent(t, agents, "bravo")

	taskID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "do the thing", PersonaID: &persona})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tasks.GetNext(ctx, agentID, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("get next: %v", err)
	}

	if err := tasks.ReportCompletion(ctx, taskID, otherAgentID, true, "done"); err == nil {
		t.Fatal("expected error when a non-owning agent reports completion")
	}
}

func TestTaskService_ReportCompletionTwiceRejectsWithActionableMessage(t *testing.T) {
	tasks, agents, _ := newTaskServiceForTest(t)
	ctx := context.Background()
	persona := "alpha"
	agentID := registerAgent(t, agents, persona)

	taskID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "do the thing", PersonaID: &persona})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := tasks.GetNext(ctx, agentID, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("get next: %v", err)
	}
	if err := tasks.ReportCompletion(ctx, taskID, agentID, true, "done"); err != nil {
		t.Fatalf("first report completion: %v", err)
	}

	err = tasks.ReportCompletion(ctx, taskID, agentID, true, "done again")
	if err == nil {
		t.Fatal("expected error re-reporting a completed task")
	}
	var ce *coordination.CoordinationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a CoordinationError, got %T: %v", err, err)
	}
	if ce.Kind != coordination.KindInvalidState {
		t.Fatalf("expected KindInvalidState, got %s", ce.Kind)
	}
	if !strings.Contains(ce.Message, "not in progress") {
		t.Fatalf("expected message to mention the task is not in progress, got %q", ce.Message)
	}
}

func TestTaskService_CreatePublishesTaskCreatedEvent(t *testing.T) {
	tasks, _, taskBus := newTaskServiceForTest(t)
	ctx := context.Background()

	sub, err := taskBus.Subscribe(ctx, bus.Filter[events.TaskKind, events.TaskPayload]{
		Kinds: bus.KindSet(events.TaskCreated),
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	taskID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "announce me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case env := <-sub.Events():
		if env.Payload.TaskID != taskID {
			t.Fatalf("expected event for task %s, got %s", taskID, env.Payload.TaskID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TaskCreated event")
	}
}

func TestTaskService_GetByStatusFiltersCorrectly(t *testing.T) {
	tasks, agents, _ := newTaskServiceForTest(t)
	ctx := context.Background()
	persona := "alpha"
	agentID := registerAgent(t, agents, persona)

	pendingID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "stays pending", PersonaID: &persona})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	doneID, err := tasks.Create(ctx, coordination.CreateRequest{Description: "gets completed", PersonaID: &persona})
	if err != nil {
		t.Fatalf("create done: %v", err)
	}
	result, err := tasks.GetNext(ctx, agentID, time.Second, 10*time.Millisecond)
	if err != nil || result.TaskID != doneID {
		t.Fatalf("expected to claim %s, got %+v err=%v", doneID, result, err)
	}
	if err := tasks.ReportCompletion(ctx, doneID, agentID, true, "ok"); err != nil {
		t.Fatalf("report completion: %v", err)
	}

	pending, err := tasks.GetByStatus(ctx, persistence.TaskPending)
	if err != nil {
		t.Fatalf("get by status pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != pendingID {
		t.Fatalf("expected only %s pending, got %+v", pendingID, pending)
	}

	completed, err := tasks.GetByStatus(ctx, persistence.TaskCompleted)
	if err != nil {
		t.Fatalf("get by status completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != doneID {
		t.Fatalf("expected only %s completed, got %+v", doneID, completed)
	}
}

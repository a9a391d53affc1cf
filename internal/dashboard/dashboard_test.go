package dashboard_test

import (
	"context"
	"testing"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/dashboard"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

func TestCollect_EmptyStoreHasZeroedCounts(t *testing.T) {
	store, err := persistence.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	snap := dashboard.Collect(context.Background(), store)
	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if len(snap.Agents) != 0 {
		t.Fatalf("expected no agents, got %d", len(snap.Agents))
	}
	for _, status := range []persistence.TaskStatus{
		persistence.TaskPending, persistence.TaskInProgress, persistence.TaskCompleted, persistence.TaskFailed,
	} {
		if snap.TaskCounts[status] != 0 {
			t.Fatalf("expected 0 tasks in status %s, got %d", status, snap.TaskCounts[status])
		}
	}
	if len(snap.RecentEvents) != 0 {
		t.Fatalf("expected no events, got %d", len(snap.RecentEvents))
	}
}

func TestCollect_ReflectsRegisteredAgentsAndTasks(t *testing.T) {
	store, err := persistence.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	agentBus := events.NewAgentBus(bus.Options{Capacity: 8})
	defer agentBus.Close()
	taskBus := events.NewTaskBus(bus.Options{Capacity: 8})
	defer taskBus.Close()
	logger := coordination.NewEventLogger(clock.New(), nil)
	agents := coordination.NewAgentService(store, agentBus, logger, clock.New())
	tasks := coordination.NewTaskService(store, taskBus, logger, clock.New())

	persona := "alpha"
	if _, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: persona, AgentType: "worker", WorkingDirectory: "/tmp"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := tasks.Create(ctx, coordination.CreateRequest{Description: "pending task", PersonaID: &persona}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	snap := dashboard.Collect(ctx, store)
	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if len(snap.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(snap.Agents))
	}
	if snap.TaskCounts[persistence.TaskPending] != 1 {
		t.Fatalf("expected 1 pending task, got %d", snap.TaskCounts[persistence.TaskPending])
	}
	if len(snap.RecentEvents) == 0 {
		t.Fatal("expected at least one recent event to be recorded")
	}
}

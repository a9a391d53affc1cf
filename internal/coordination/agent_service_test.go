package coordination_test

import (
	"context"
	"testing"
	"time"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

func newAgentServiceForTest(t *testing.T) (*coordination.AgentService, *events.AgentBus) {
	t.Helper()
	store, err := persistence.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	agentBus := events.NewAgentBus(bus.Options{Capacity: 16})
	t.Cleanup(func() { agentBus.Close() })

	logger := coordination.NewEventLogger(clock.New(), nil)
	return coordination.NewAgentService(store, agentBus, logger, clock.New()), agentBus
}

func TestAgentService_RegisterRejectsBlankFields(t *testing.T) {
	agents, _ := newAgentServiceForTest(t)
	ctx := context.Background()

	if _, err := agents.Register(ctx, coordination.RegisterRequest{AgentType: "worker", WorkingDirectory: "/tmp"}); err == nil {
		t.Fatal("expected error for blank persona")
	}
	if _, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "p", WorkingDirectory: "/tmp"}); err == nil {
		t.Fatal("expected error for blank agentType")
	}
	if _, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "p", AgentType: "worker"}); err == nil {
		t.Fatal("expected error for blank workingDirectory")
	}
}

func TestAgentService_RegisterAndHeartbeatPromotesToRunning(t *testing.T) {
	agents, _ := newAgentServiceForTest(t)
	ctx := context.Background()

	id, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "alpha", AgentType: "worker", WorkingDirectory: "/tmp"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	roster, err := agents.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roster) != 1 || roster[0].Status != persistence.AgentStarting {
		t.Fatalf("expected one Starting agent, got %+v", roster)
	}

	ok, err := agents.Heartbeat(ctx, id)
	if err != nil || !ok {
		t.Fatalf("heartbeat: ok=%v err=%v", ok, err)
	}

	roster, err = agents.List(ctx, "")
	if err != nil {
		t.Fatalf("list after heartbeat: %v", err)
	}
	if roster[0].Status != persistence.AgentRunning {
		t.Fatalf("expected Running after heartbeat, got %s", roster[0].Status)
	}
}

func TestAgentService_HeartbeatUnknownAgentReturnsFalseNotError(t *testing.T) {
	agents, _ := newAgentServiceForTest(t)
	ok, err := agents.Heartbeat(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error for unknown agent, got %v", err)
	}
	if ok {
		t.Fatal("expected false for unknown agent")
	}
}

func TestAgentService_KillIsIdempotentOnTerminalAgent(t *testing.T) {
	agents, _ := newAgentServiceForTest(t)
	ctx := context.Background()

	id, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "alpha", AgentType: "worker", WorkingDirectory: "/tmp"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := agents.Kill(ctx, id); err != nil {
		t.Fatalf("first kill: %v", err)
	}
	if err := agents.Kill(ctx, id); err != nil {
		t.Fatalf("second kill on terminal agent should be a no-op success: %v", err)
	}
}

func TestAgentService_SweepUnhealthyMarksStaleAgents(t *testing.T) {
	agents, _ := newAgentServiceForTest(t)
	ctx := context.Background()

	id, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "alpha", AgentType: "worker", WorkingDirectory: "/tmp"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := agents.Heartbeat(ctx, id); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := agents.SweepUnhealthy(ctx, 1*time.Millisecond); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	roster, err := agents.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if roster[0].Status != persistence.AgentUnhealthy {
		t.Fatalf("expected Unhealthy after sweep, got %s", roster[0].Status)
	}
}

func TestAgentService_RegisterPublishesAgentRegisteredEvent(t *testing.T) {
	agents, agentBus := newAgentServiceForTest(t)
	ctx := context.Background()

	sub, err := agentBus.Subscribe(ctx, bus.Filter[events.AgentKind, events.AgentPayload]{
		Kinds: bus.KindSet(events.AgentRegistered),
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	id, err := agents.Register(ctx, coordination.RegisterRequest{PersonaID: "alpha", AgentType: "worker", WorkingDirectory: "/tmp"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case env := <-sub.Events():
		if env.Payload.AgentID != id {
			t.Fatalf("expected event for agent %s, got %s", id, env.Payload.AgentID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AgentRegistered event")
	}
}

package persistence_test

import (
	"context"
	"time"

	"github.com/aiswarm/swarmd/internal/persistence"
)

func testContext() context.Context { return context.Background() }

func newTestAgent(id, persona string) persistence.Agent {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return persistence.Agent{
		ID:               id,
		PersonaID:        persona,
		AgentType:        "worker",
		WorkingDirectory: "/tmp/" + id,
		Status:           persistence.AgentStarting,
		RegisteredAt:     now,
		LastHeartbeat:    now,
		StartedAt:        now,
	}
}

func strPtr(s string) *string { return &s }

package coordination

import (
	"context"
	"strings"
	"time"

	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/notify"
	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/google/uuid"
)

// AgentService implements spec §4.5: registration, heartbeats, kill, and
// the background unhealthy sweep.
type AgentService struct {
	store  *persistence.Store
	notify *notify.AgentNotifications
	logger *EventLogger
	clock  clock.Clock
}

// NewAgentService wires an AgentService.
func NewAgentService(store *persistence.Store, bus *events.AgentBus, logger *EventLogger, c clock.Clock) *AgentService {
	return &AgentService{
		store:  store,
		notify: notify.NewAgentNotifications(bus),
		logger: logger,
		clock:  c,
	}
}

// RegisterRequest carries the arguments for Register.
type RegisterRequest struct {
	PersonaID        string
	AgentType        string
	WorkingDirectory string
	Model            *string
	WorktreeName     *string
}

// Register creates a new agent in Starting status.
func (s *AgentService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if blank(req.PersonaID) {
		return "", newErr(KindInvalidInput, "persona must not be blank", nil)
	}
	if blank(req.AgentType) {
		return "", newErr(KindInvalidInput, "agentType must not be blank", nil)
	}
	if blank(req.WorkingDirectory) {
		return "", newErr(KindInvalidInput, "workingDirectory must not be blank", nil)
	}

	id := uuid.NewString()
	now := s.clock.Now()
	agent := persistence.Agent{
		ID:               id,
		PersonaID:        req.PersonaID,
		AgentType:        req.AgentType,
		WorkingDirectory: req.WorkingDirectory,
		Status:           persistence.AgentStarting,
		Model:            req.Model,
		WorktreeName:     req.WorktreeName,
		RegisteredAt:     now,
		LastHeartbeat:    now,
		StartedAt:        now,
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return "", wrapStoreErr("begin register", err)
	}
	if err := persistence.RegisterAgent(w, agent); err != nil {
		return "", wrapStoreErr("register agent", err)
	}
	s.logger.logWithin(w, "AgentRegistered", persistence.SeverityInformation, &id, strPtr("agent"), nil)
	if err := op.Complete(); err != nil {
		return "", wrapStoreErr("commit register", err)
	}

	_ = s.notify.Publish(ctx, events.AgentRegistered, events.AgentPayload{
		AgentID: id, PersonaID: req.PersonaID, NewStatus: string(persistence.AgentStarting),
	}, "")
	return id, nil
}

// Heartbeat updates LastHeartbeat, promoting Starting→Running and
// recovering from Unhealthy→Running. Returns false if the agent is
// missing, per spec §4.5 (idempotent, no error for an unknown id).
func (s *AgentService) Heartbeat(ctx context.Context, agentID string) (bool, error) {
	if blank(agentID) {
		return false, newErr(KindInvalidInput, "agentId must not be blank", nil)
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return false, wrapStoreErr("begin heartbeat", err)
	}

	agent, err := persistence.GetAgent(w.asRead(), agentID)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("lookup agent", err)
	}

	now := s.clock.Now()
	if err := persistence.RecordHeartbeat(w, agentID, now); err != nil {
		return false, wrapStoreErr("record heartbeat", err)
	}
	if agent.Status == persistence.AgentStarting {
		if err := persistence.UpdateAgentStatus(w, agentID, persistence.AgentRunning, now); err != nil {
			return false, wrapStoreErr("promote starting agent", err)
		}
	}
	if err := op.Complete(); err != nil {
		return false, wrapStoreErr("commit heartbeat", err)
	}
	return true, nil
}

// Kill transitions an agent to Killed. Terminal agents are a no-op
// success per spec §4.5.
func (s *AgentService) Kill(ctx context.Context, agentID string) error {
	if blank(agentID) {
		return newErr(KindInvalidInput, "agentId must not be blank", nil)
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return wrapStoreErr("begin kill", err)
	}

	agent, err := persistence.GetAgent(w.asRead(), agentID)
	if err != nil {
		return wrapStoreErr("lookup agent", err)
	}
	if agent.Status.IsTerminal() {
		return op.Complete()
	}

	now := s.clock.Now()
	if err := persistence.UpdateAgentStatus(w, agentID, persistence.AgentKilled, now); err != nil {
		return wrapStoreErr("kill agent", err)
	}
	s.logger.logWithin(w, "AgentKilled", persistence.SeverityWarning, &agentID, strPtr("agent"), nil)
	if err := op.Complete(); err != nil {
		return wrapStoreErr("commit kill", err)
	}

	_ = s.notify.Publish(ctx, events.AgentKilled, events.AgentPayload{
		AgentID: agentID, PersonaID: agent.PersonaID,
		OldStatus: string(agent.Status), NewStatus: string(persistence.AgentKilled),
	}, "")
	return nil
}

// List returns a snapshot of agents, optionally filtered by persona.
func (s *AgentService) List(ctx context.Context, persona string) ([]persistence.Agent, error) {
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	agents, err := persistence.ListAgents(op.Read(), persona)
	if err != nil {
		return nil, wrapStoreErr("list agents", err)
	}
	return agents, nil
}

// SweepUnhealthy flips active agents whose last heartbeat is older than
// threshold into Unhealthy, emitting AgentStatusChanged for each.
func (s *AgentService) SweepUnhealthy(ctx context.Context, threshold time.Duration) error {
	cutoff := s.clock.Now().Add(-threshold)

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return wrapStoreErr("begin sweep", err)
	}
	ids, err := persistence.SweepUnhealthyAgents(w, cutoff)
	if err != nil {
		return wrapStoreErr("sweep unhealthy", err)
	}
	for _, id := range ids {
		s.logger.logWithin(w, "AgentStatusChanged", persistence.SeverityWarning, &id, strPtr("agent"), nil)
	}
	if err := op.Complete(); err != nil {
		return wrapStoreErr("commit sweep", err)
	}

	for _, id := range ids {
		_ = s.notify.Publish(ctx, events.AgentStatusChanged, events.AgentPayload{
			AgentID: id, OldStatus: string(persistence.AgentRunning), NewStatus: string(persistence.AgentUnhealthy),
		}, "")
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func strPtr(s string) *string { return &s }

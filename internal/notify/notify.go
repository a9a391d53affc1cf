// Package notify adapts the three typed event buses into the
// subscription shapes the coordination services need: agent-targeted,
// persona-broadcast, and key-scoped waits. It holds no state of its own —
// every subscription is a live bus.Filter translated from a routing
// request.
package notify

import (
	"context"
	"errors"

	"github.com/aiswarm/swarmd/internal/bus"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/persistence"
)

// ErrBlankID is returned when a subscription request supplies an empty or
// whitespace-only id where one is required.
var ErrBlankID = errors.New("notify: id must not be blank")

// WorkItemNotifications adapts events.TaskBus for TaskService's long-poll.
type WorkItemNotifications struct {
	bus *events.TaskBus
}

// NewWorkItemNotifications wraps an existing TaskBus.
func NewWorkItemNotifications(b *events.TaskBus) *WorkItemNotifications {
	return &WorkItemNotifications{bus: b}
}

// SubscribeForAgent returns a subscription that fires on any TaskCreated
// event addressed directly to agentID.
func (n *WorkItemNotifications) SubscribeForAgent(ctx context.Context, agentID string) (*bus.Subscription[events.TaskKind, events.TaskPayload], error) {
	filter := bus.Filter[events.TaskKind, events.TaskPayload]{
		Kinds: bus.KindSet(events.TaskCreated),
		Subject: func(p events.TaskPayload) bool {
			return p.AgentID == agentID
		},
	}
	return n.bus.Subscribe(ctx, filter)
}

// SubscribeForPersona returns a subscription that fires on any TaskCreated
// event broadcast to personaNorm's pool. Dual delivery per the persona
// routing rule: work already assigned to a specific agent (AgentID set) is
// excluded from the persona-wide broadcast, since it is no longer
// available to the pool at large.
func (n *WorkItemNotifications) SubscribeForPersona(ctx context.Context, personaNorm string) (*bus.Subscription[events.TaskKind, events.TaskPayload], error) {
	if personaNorm == "" {
		return nil, ErrBlankID
	}
	filter := bus.Filter[events.TaskKind, events.TaskPayload]{
		Kinds: bus.KindSet(events.TaskCreated),
		Subject: func(p events.TaskPayload) bool {
			return p.AgentID == "" && (p.PersonaID == "" || persistence.NormalizePersona(p.PersonaID) == personaNorm)
		},
	}
	return n.bus.Subscribe(ctx, filter)
}

// PublishTaskCreated announces a new task. Subscribers decide relevance
// themselves via their filter's Subject predicate.
func (n *WorkItemNotifications) PublishTaskCreated(ctx context.Context, p events.TaskPayload, correlationID string) error {
	return n.bus.Publish(ctx, events.TaskCreated, p, correlationID)
}

// PublishLifecycle announces a TaskClaimed, TaskCompleted, or TaskFailed
// event. TaskCreated has its own named entry point above since it is the
// one kind long-poll subscribers filter on.
func (n *WorkItemNotifications) PublishLifecycle(ctx context.Context, kind events.TaskKind, p events.TaskPayload) error {
	return n.bus.Publish(ctx, kind, p, "")
}

// AgentNotifications adapts events.AgentBus.
type AgentNotifications struct {
	bus *events.AgentBus
}

// NewAgentNotifications wraps an existing AgentBus.
func NewAgentNotifications(b *events.AgentBus) *AgentNotifications {
	return &AgentNotifications{bus: b}
}

// SubscribeAll returns a subscription that fires on every agent lifecycle
// event, used by the admin dashboard and the alert channel.
func (n *AgentNotifications) SubscribeAll(ctx context.Context) (*bus.Subscription[events.AgentKind, events.AgentPayload], error) {
	return n.bus.Subscribe(ctx, bus.Filter[events.AgentKind, events.AgentPayload]{})
}

// SubscribeForAgent returns a subscription scoped to one agent id's
// lifecycle events.
func (n *AgentNotifications) SubscribeForAgent(ctx context.Context, agentID string) (*bus.Subscription[events.AgentKind, events.AgentPayload], error) {
	filter := bus.Filter[events.AgentKind, events.AgentPayload]{
		Subject: func(p events.AgentPayload) bool { return p.AgentID == agentID },
	}
	return n.bus.Subscribe(ctx, filter)
}

// Publish announces an agent lifecycle transition.
func (n *AgentNotifications) Publish(ctx context.Context, kind events.AgentKind, p events.AgentPayload, correlationID string) error {
	return n.bus.Publish(ctx, kind, p, correlationID)
}

// MemoryNotifications adapts events.MemoryBus for WaitForKey long-polls.
type MemoryNotifications struct {
	bus *events.MemoryBus
}

// NewMemoryNotifications wraps an existing MemoryBus.
func NewMemoryNotifications(b *events.MemoryBus) *MemoryNotifications {
	return &MemoryNotifications{bus: b}
}

// SubscribeForKey returns a subscription that wakes on any write to
// exactly (namespace, key). The payload only identifies what changed —
// callers always re-read the store for the current value.
func (n *MemoryNotifications) SubscribeForKey(ctx context.Context, namespace, key string) (*bus.Subscription[events.MemoryKind, events.MemoryPayload], error) {
	if namespace == "" || key == "" {
		return nil, ErrBlankID
	}
	filter := bus.Filter[events.MemoryKind, events.MemoryPayload]{
		Subject: func(p events.MemoryPayload) bool {
			return p.Namespace == namespace && p.Key == key
		},
	}
	return n.bus.Subscribe(ctx, filter)
}

// SubscribeForNamespace returns a subscription that wakes on any write
// within namespace, used by the admin dashboard tail.
func (n *MemoryNotifications) SubscribeForNamespace(ctx context.Context, namespace string) (*bus.Subscription[events.MemoryKind, events.MemoryPayload], error) {
	filter := bus.Filter[events.MemoryKind, events.MemoryPayload]{
		Subject: func(p events.MemoryPayload) bool { return p.Namespace == namespace },
	}
	return n.bus.Subscribe(ctx, filter)
}

// Publish announces a memory write.
func (n *MemoryNotifications) Publish(ctx context.Context, kind events.MemoryKind, p events.MemoryPayload, correlationID string) error {
	return n.bus.Publish(ctx, kind, p, correlationID)
}

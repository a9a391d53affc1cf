// Package events defines the closed event-kind spaces and payload shapes
// carried on the three domain buses (tasks, agents, memory). Each bus is a
// distinct bus.Bus[K,P] instance so the kind enum stays closed per domain
// and switch statements over Kind can be exhaustive.
package events

import "github.com/aiswarm/swarmd/internal/bus"

// TaskKind enumerates work-item lifecycle events.
type TaskKind int

const (
	TaskCreated TaskKind = iota
	TaskClaimed
	TaskCompleted
	TaskFailed
)

func (k TaskKind) String() string {
	switch k {
	case TaskCreated:
		return "TaskCreated"
	case TaskClaimed:
		return "TaskClaimed"
	case TaskCompleted:
		return "TaskCompleted"
	case TaskFailed:
		return "TaskFailed"
	default:
		return "TaskUnknown"
	}
}

// TaskPayload carries the routing fields a work-item event needs:
// enough for both agent-targeted and persona-broadcast subscribers to
// decide whether the event is theirs, without re-querying the store.
type TaskPayload struct {
	TaskID      string
	AgentID     string // empty = unassigned at publish time
	PersonaID   string // empty = untagged
	Description string
	Priority    int
	Result      string
	Success     bool
}

// TaskBus is the closed event-kind bus for work-item lifecycle events.
type TaskBus = bus.Bus[TaskKind, TaskPayload]

// NewTaskBus constructs a TaskBus with the given options.
func NewTaskBus(opts bus.Options) *TaskBus { return bus.New[TaskKind, TaskPayload](opts) }

// AgentKind enumerates agent lifecycle events.
type AgentKind int

const (
	AgentRegistered AgentKind = iota
	AgentKilled
	AgentStatusChanged
)

func (k AgentKind) String() string {
	switch k {
	case AgentRegistered:
		return "AgentRegistered"
	case AgentKilled:
		return "AgentKilled"
	case AgentStatusChanged:
		return "AgentStatusChanged"
	default:
		return "AgentUnknown"
	}
}

// AgentPayload describes an agent lifecycle event.
type AgentPayload struct {
	AgentID   string
	PersonaID string
	OldStatus string
	NewStatus string
}

// AgentBus is the closed event-kind bus for agent lifecycle events.
type AgentBus = bus.Bus[AgentKind, AgentPayload]

// NewAgentBus constructs an AgentBus with the given options.
func NewAgentBus(opts bus.Options) *AgentBus { return bus.New[AgentKind, AgentPayload](opts) }

// MemoryKind enumerates memory-entry lifecycle events.
type MemoryKind int

const (
	MemorySaved MemoryKind = iota
	MemoryUpdated
)

func (k MemoryKind) String() string {
	switch k {
	case MemorySaved:
		return "MemorySaved"
	case MemoryUpdated:
		return "MemoryUpdated"
	default:
		return "MemoryUnknown"
	}
}

// MemoryPayload describes a memory write. WaitForKey subscribers use it
// only as a wakeup trigger — they always re-read the store afterward.
type MemoryPayload struct {
	Namespace string
	Key       string
}

// MemoryBus is the closed event-kind bus for memory-entry events.
type MemoryBus = bus.Bus[MemoryKind, MemoryPayload]

// NewMemoryBus constructs a MemoryBus with the given options.
func NewMemoryBus(opts bus.Options) *MemoryBus { return bus.New[MemoryKind, MemoryPayload](opts) }

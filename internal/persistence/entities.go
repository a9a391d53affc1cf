package persistence

import "time"

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentStarting AgentStatus = "Starting"
	AgentRunning  AgentStatus = "Running"
	AgentStopping AgentStatus = "Stopping"
	AgentStopped  AgentStatus = "Stopped"
	AgentFailed   AgentStatus = "Failed"
	AgentKilled   AgentStatus = "Killed"
	AgentUnhealthy AgentStatus = "Unhealthy"
)

// IsTerminal reports whether no further mutation is allowed from this status.
func (s AgentStatus) IsTerminal() bool {
	switch s {
	case AgentStopped, AgentFailed, AgentKilled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the agent is eligible to claim or be assigned work.
func (s AgentStatus) IsActive() bool {
	switch s {
	case AgentStarting, AgentRunning, AgentStopping, AgentUnhealthy:
		return true
	default:
		return false
	}
}

// Agent is the persisted record of a swarm participant.
type Agent struct {
	ID               string
	PersonaID        string // original case, as registered
	PersonaIDNorm    string // lower-cased shadow column for case-insensitive routing
	AgentType        string
	WorkingDirectory string
	Status           AgentStatus
	ProcessID        *int
	Model            *string
	WorktreeName     *string
	RegisteredAt     time.Time
	LastHeartbeat    time.Time
	StartedAt        time.Time
	StoppedAt        *time.Time
}

// TaskStatus is the lifecycle state of a work item.
type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted  TaskStatus = "Completed"
	TaskFailed     TaskStatus = "Failed"
)

// IsTerminal reports whether the task is Completed or Failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Priority orders pending work items; higher values are claimed first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// WorkItem is a unit of dispatchable work.
type WorkItem struct {
	ID            string
	AgentID       *string
	Status        TaskStatus
	PersonaID     *string
	PersonaIDNorm *string
	Description   string
	Priority      Priority
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Result        *string
}

// MemoryEntry is a namespaced keyed value with access bookkeeping.
type MemoryEntry struct {
	ID            string
	Namespace     string
	Key           string
	Value         string
	Type          string
	Metadata      *string
	IsCompressed  bool
	Size          int64
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	AccessedAt    *time.Time
	AccessCount   int64
}

// Severity classifies an EventLog entry.
type Severity string

const (
	SeverityInformation Severity = "Information"
	SeverityWarning     Severity = "Warning"
	SeverityError       Severity = "Error"
	SeverityCritical    Severity = "Critical"
)

// EventLogEntry is one append-only audit row derived from a bus envelope.
type EventLogEntry struct {
	ID            int64
	EventType     string
	Timestamp     time.Time
	Actor         *string
	CorrelationID *string
	EntityID      *string
	EntityType    *string
	Severity      Severity
	Payload       string
	Tags          *string
}

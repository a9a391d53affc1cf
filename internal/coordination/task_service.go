package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aiswarm/swarmd/internal/clock"
	"github.com/aiswarm/swarmd/internal/events"
	"github.com/aiswarm/swarmd/internal/notify"
	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/google/uuid"
)

// DefaultTaskWait is the default get_next_task long-poll timeout.
const DefaultTaskWait = 30 * time.Second

// DefaultPollingInterval is the default re-check cadence for get_next_task
// while waiting on a TaskCreated wakeup.
const DefaultPollingInterval = 2 * time.Second

// TaskService implements spec §4.6.
type TaskService struct {
	store  *persistence.Store
	notify *notify.WorkItemNotifications
	logger *EventLogger
	clock  clock.Clock
}

// NewTaskService wires a TaskService.
func NewTaskService(store *persistence.Store, bus *events.TaskBus, logger *EventLogger, c clock.Clock) *TaskService {
	return &TaskService{store: store, notify: notify.NewWorkItemNotifications(bus), logger: logger, clock: c}
}

// CreateRequest carries the arguments for Create.
type CreateRequest struct {
	Description string
	AgentID     *string
	PersonaID   *string
	Priority    persistence.Priority
}

// Create persists a new Pending work item and announces it.
func (s *TaskService) Create(ctx context.Context, req CreateRequest) (string, error) {
	if blank(req.Description) {
		return "", newErr(KindInvalidInput, "description must not be blank", nil)
	}
	if req.Priority == 0 {
		req.Priority = persistence.PriorityNormal
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return "", wrapStoreErr("begin create task", err)
	}

	if req.AgentID != nil {
		agent, err := persistence.GetAgent(w.asRead(), *req.AgentID)
		if err == persistence.ErrNotFound {
			return "", newErr(KindNotFound, fmt.Sprintf("Agent not found: %s", *req.AgentID), nil)
		}
		if err != nil {
			return "", wrapStoreErr("lookup agent for task", err)
		}
		if !agent.Status.IsActive() {
			return "", newErr(KindInvalidState, "Agent is not running", nil)
		}
	}

	id := uuid.NewString()
	task := persistence.WorkItem{
		ID:          id,
		AgentID:     req.AgentID,
		Status:      persistence.TaskPending,
		PersonaID:   req.PersonaID,
		Description: req.Description,
		Priority:    req.Priority,
		CreatedAt:   s.clock.Now(),
	}
	if err := persistence.CreateTask(w, task); err != nil {
		return "", wrapStoreErr("create task", err)
	}
	s.logger.logWithin(w, "TaskCreated", persistence.SeverityInformation, &id, strPtr("task"), nil)
	if err := op.Complete(); err != nil {
		return "", wrapStoreErr("commit create task", err)
	}

	payload := events.TaskPayload{TaskID: id, Description: req.Description, Priority: int(req.Priority)}
	if req.AgentID != nil {
		payload.AgentID = *req.AgentID
	}
	if req.PersonaID != nil {
		payload.PersonaID = *req.PersonaID
	}
	_ = s.notify.PublishTaskCreated(ctx, payload, "")
	return id, nil
}

// GetNextResult is the shaped outcome of GetNext.
type GetNextResult struct {
	TaskID      string
	PersonaID   string
	Description string
	Message     string
	TimedOut    bool
}

// GetNext implements the long-poll claim loop of spec §4.6 steps 1-5.
func (s *TaskService) GetNext(ctx context.Context, agentID string, waitFor, pollEvery time.Duration) (GetNextResult, error) {
	if blank(agentID) {
		return GetNextResult{}, newErr(KindInvalidInput, "agentId must not be blank", nil)
	}
	if waitFor <= 0 {
		waitFor = DefaultTaskWait
	}
	if pollEvery <= 0 {
		pollEvery = DefaultPollingInterval
	}

	op := s.store.BeginOperation(ctx)
	agent, err := persistence.GetAgent(op.Read(), agentID)
	op.Close()
	if err == persistence.ErrNotFound {
		return GetNextResult{}, newErr(KindNotFound, fmt.Sprintf("Agent not found: %s", agentID), nil)
	}
	if err != nil {
		return GetNextResult{}, wrapStoreErr("lookup agent", err)
	}
	personaNorm := persistence.NormalizePersona(agent.PersonaID)

	if result, ok, err := s.tryClaim(ctx, agentID, personaNorm); err != nil {
		return GetNextResult{}, err
	} else if ok {
		return result, nil
	}

	agentSub, err := s.notify.SubscribeForAgent(ctx, agentID)
	if err != nil {
		return GetNextResult{}, wrapStoreErr("subscribe for agent", err)
	}
	defer agentSub.Close()
	personaSub, err := s.notify.SubscribeForPersona(ctx, personaNorm)
	if err != nil {
		return GetNextResult{}, wrapStoreErr("subscribe for persona", err)
	}
	defer personaSub.Close()

	deadline := s.clock.NewTimer(waitFor)
	defer deadline.Stop()

	for {
		poll := s.clock.NewTimer(pollEvery)
		select {
		case <-ctx.Done():
			poll.Stop()
			return s.timeoutResult(), nil
		case <-deadline.C():
			poll.Stop()
			return s.timeoutResult(), nil
		case <-agentSub.Events():
			poll.Stop()
		case <-personaSub.Events():
			poll.Stop()
		case <-poll.C():
		}

		if result, ok, err := s.tryClaim(ctx, agentID, personaNorm); err != nil {
			return GetNextResult{}, err
		} else if ok {
			return result, nil
		}
	}
}

func (s *TaskService) tryClaim(ctx context.Context, agentID, personaNorm string) (GetNextResult, bool, error) {
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return GetNextResult{}, false, wrapStoreErr("begin claim", err)
	}

	claimed, err := persistence.ClaimNextPendingTask(w, agentID, personaNorm, s.clock.Now())
	if err == persistence.ErrNotFound {
		return GetNextResult{}, false, nil
	}
	if err != nil {
		return GetNextResult{}, false, wrapStoreErr("claim next task", err)
	}
	s.logger.logWithin(w, "TaskClaimed", persistence.SeverityInformation, &claimed.ID, strPtr("task"), nil)
	if err := op.Complete(); err != nil {
		return GetNextResult{}, false, wrapStoreErr("commit claim", err)
	}

	persona := ""
	if claimed.PersonaID != nil {
		persona = *claimed.PersonaID
	}
	_ = s.notify.PublishLifecycle(ctx, events.TaskClaimed, events.TaskPayload{
		TaskID: claimed.ID, AgentID: agentID, PersonaID: persona, Description: claimed.Description,
	})
	return GetNextResult{
		TaskID:      claimed.ID,
		PersonaID:   persona,
		Description: claimed.Description,
		Message:     "Task claimed. Call report_task_completion when finished, then get_next_task again.",
	}, true, nil
}

func (s *TaskService) timeoutResult() GetNextResult {
	return GetNextResult{
		TaskID:   fmt.Sprintf("system:requery:%s", uuid.NewString()),
		Message:  "No tasks available. Call get_next_task again.",
		TimedOut: true,
	}
}

// ReportCompletion transitions an InProgress task owned by agentID to a
// terminal state.
func (s *TaskService) ReportCompletion(ctx context.Context, taskID, agentID string, success bool, result string) error {
	if blank(taskID) {
		return newErr(KindInvalidInput, "taskId must not be blank", nil)
	}
	if blank(agentID) {
		return newErr(KindInvalidInput, "agentId must not be blank", nil)
	}

	op := s.store.BeginOperation(ctx)
	defer op.Close()
	w, err := op.Write()
	if err != nil {
		return wrapStoreErr("begin report completion", err)
	}

	task, err := persistence.GetTask(w.asRead(), taskID)
	if err != nil {
		return wrapStoreErr("lookup task", err)
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		return newErr(KindInvalidState, "task is not owned by this agent", nil)
	}

	if err := persistence.ReportTaskCompletion(w, taskID, success, result, s.clock.Now()); err != nil {
		if errors.Is(err, persistence.ErrInvalidState) {
			return newErr(KindInvalidState, "task is not in progress", err)
		}
		return wrapStoreErr("report completion", err)
	}
	eventType, severity := "TaskCompleted", persistence.SeverityInformation
	if !success {
		eventType, severity = "TaskFailed", persistence.SeverityError
	}
	s.logger.logWithin(w, eventType, severity, &taskID, strPtr("task"), nil)
	if err := op.Complete(); err != nil {
		return wrapStoreErr("commit report completion", err)
	}

	kind := events.TaskCompleted
	if !success {
		kind = events.TaskFailed
	}
	payload := events.TaskPayload{TaskID: taskID, AgentID: agentID, Result: result, Success: success}
	if task.PersonaID != nil {
		payload.PersonaID = *task.PersonaID
	}
	_ = s.notify.PublishLifecycle(ctx, kind, payload)
	return nil
}

// GetStatus returns one task by id.
func (s *TaskService) GetStatus(ctx context.Context, taskID string) (persistence.WorkItem, error) {
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	t, err := persistence.GetTask(op.Read(), taskID)
	if err != nil {
		return persistence.WorkItem{}, wrapStoreErr("get task status", err)
	}
	return t, nil
}

// GetByStatus returns all tasks in the given status.
func (s *TaskService) GetByStatus(ctx context.Context, status persistence.TaskStatus) ([]persistence.WorkItem, error) {
	op := s.store.BeginOperation(ctx)
	defer op.Close()
	tasks, err := persistence.GetTasksByStatus(op.Read(), status)
	if err != nil {
		return nil, wrapStoreErr("get tasks by status", err)
	}
	return tasks, nil
}

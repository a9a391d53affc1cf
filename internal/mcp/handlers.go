// Package mcp adapts the coordination services to the MCP tool surface
// of spec §4.8: JSON argument validation, scoped error translation, and
// the stdio/HTTP transports that carry tool invocations.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aiswarm/swarmd/internal/coordination"
	"github.com/aiswarm/swarmd/internal/persistence"
	"github.com/aiswarm/swarmd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Result is the generic tool response shape: at least success/errorMessage
// plus tool-specific fields, per spec §4.8/§6.
type Result map[string]any

func success(fields Result) Result {
	if fields == nil {
		fields = Result{}
	}
	fields["success"] = true
	return fields
}

func failure(message string) Result {
	return Result{"success": false, "errorMessage": message}
}

// Handlers dispatches named tool invocations to the coordination services.
type Handlers struct {
	Agents  *coordination.AgentService
	Tasks   *coordination.TaskService
	Memory  *coordination.MemoryService
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics

	schemas map[string]*compiledSchema
}

// NewHandlers compiles every tool's argument schema up front so a bad
// schema fails fast at startup rather than on first invocation.
func NewHandlers(agents *coordination.AgentService, tasks *coordination.TaskService, memory *coordination.MemoryService, logger *slog.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) (*Handlers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas := make(map[string]*compiledSchema, len(toolSchemas))
	for name, raw := range toolSchemas {
		cs, err := compileSchema(name, raw)
		if err != nil {
			return nil, err
		}
		schemas[name] = cs
	}
	return &Handlers{Agents: agents, Tasks: tasks, Memory: memory, Logger: logger, Tracer: tracer, Metrics: metrics, schemas: schemas}, nil
}

// Dispatch validates args against the named tool's schema, invokes the
// matching handler, and never lets a panic or raw driver error escape to
// the transport — everything becomes a {success:false} Result.
func (h *Handlers) Dispatch(ctx context.Context, tool string, args map[string]any) Result {
	schema, ok := h.schemas[tool]
	if !ok {
		return failure(fmt.Sprintf("unknown tool: %s", tool))
	}

	ctx, span := telemetry.StartServerSpan(ctx, h.Tracer, "mcp."+tool, telemetry.AttrToolName.String(tool))
	start := time.Now()
	defer func() {
		span.End()
	}()

	if err := schema.validateArgs(args); err != nil {
		h.recordOutcome(span, start, tool, false)
		return failure(err.Error())
	}

	result := h.invoke(ctx, tool, args)
	ok = result["success"] == true
	h.recordOutcome(span, start, tool, ok)
	if !ok {
		span.SetStatus(codes.Error, fmt.Sprint(result["errorMessage"]))
	}
	return result
}

func (h *Handlers) recordOutcome(span trace.Span, start time.Time, tool string, ok bool) {
	if h.Metrics == nil {
		return
	}
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	h.Metrics.ToolCallDuration.Record(context.Background(), elapsed, attrs)
	if !ok {
		h.Metrics.ToolCallErrors.Add(context.Background(), 1, attrs)
	}
}

func (h *Handlers) invoke(ctx context.Context, tool string, args map[string]any) Result {
	switch tool {
	case "register_agent":
		return h.registerAgent(ctx, args)
	case "heartbeat":
		return h.heartbeat(ctx, args)
	case "kill_agent":
		return h.killAgent(ctx, args)
	case "list_agents":
		return h.listAgents(ctx, args)
	case "create_task":
		return h.createTask(ctx, args)
	case "get_next_task":
		return h.getNextTask(ctx, args)
	case "report_task_completion":
		return h.reportTaskCompletion(ctx, args)
	case "get_task_status":
		return h.getTaskStatus(ctx, args)
	case "get_tasks_by_status":
		return h.getTasksByStatus(ctx, args)
	case "save_memory":
		return h.saveMemory(ctx, args)
	case "read_memory":
		return h.readMemory(ctx, args)
	case "list_memory":
		return h.listMemory(ctx, args)
	case "wait_for_memory_key":
		return h.waitForMemoryKey(ctx, args)
	default:
		return failure(fmt.Sprintf("unknown tool: %s", tool))
	}
}

// errResult translates a service error into a Result, logging anything
// that isn't a recognized CoordinationError as Internal, per spec §7.
func errResult(logger *slog.Logger, tool string, err error) Result {
	var ce *coordination.CoordinationError
	if errors.As(err, &ce) {
		if ce.Kind == coordination.KindInternal {
			logger.Error("internal coordination error", "tool", tool, "error", ce.Cause)
		}
		return failure(ce.Message)
	}
	logger.Error("unrecognized error", "tool", tool, "error", err)
	return failure("internal error")
}

func str(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func strPtrArg(args map[string]any, key string) *string {
	if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
		return &v
	}
	return nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func millis(args map[string]any, key string, def time.Duration) time.Duration {
	ms := intArg(args, key, -1)
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (h *Handlers) registerAgent(ctx context.Context, args map[string]any) Result {
	id, err := h.Agents.Register(ctx, coordination.RegisterRequest{
		PersonaID:        str(args, "persona"),
		AgentType:        str(args, "agentType"),
		WorkingDirectory: str(args, "workingDirectory"),
		Model:            strPtrArg(args, "model"),
		WorktreeName:     strPtrArg(args, "worktree"),
	})
	if err != nil {
		return errResult(h.Logger, "register_agent", err)
	}
	if h.Metrics != nil {
		h.Metrics.AgentsRegistered.Add(ctx, 1)
	}
	return success(Result{"agentId": id})
}

func (h *Handlers) heartbeat(ctx context.Context, args map[string]any) Result {
	ok, err := h.Agents.Heartbeat(ctx, str(args, "agentId"))
	if err != nil {
		return errResult(h.Logger, "heartbeat", err)
	}
	return success(Result{"acknowledged": ok})
}

func (h *Handlers) killAgent(ctx context.Context, args map[string]any) Result {
	if err := h.Agents.Kill(ctx, str(args, "agentId")); err != nil {
		return errResult(h.Logger, "kill_agent", err)
	}
	return success(nil)
}

func (h *Handlers) listAgents(ctx context.Context, args map[string]any) Result {
	agents, err := h.Agents.List(ctx, str(args, "filter"))
	if err != nil {
		return errResult(h.Logger, "list_agents", err)
	}
	return success(Result{"agents": agentsToMaps(agents)})
}

func (h *Handlers) createTask(ctx context.Context, args map[string]any) Result {
	priority := persistence.Priority(intArg(args, "priority", int(persistence.PriorityNormal)))
	id, err := h.Tasks.Create(ctx, coordination.CreateRequest{
		Description: str(args, "description"),
		AgentID:     strPtrArg(args, "agentId"),
		PersonaID:   strPtrArg(args, "personaId"),
		Priority:    priority,
	})
	if err != nil {
		return errResult(h.Logger, "create_task", err)
	}
	return success(Result{"taskId": id})
}

func (h *Handlers) getNextTask(ctx context.Context, args map[string]any) Result {
	waitFor := millis(args, "waitMs", coordination.DefaultTaskWait)
	pollEvery := millis(args, "pollMs", coordination.DefaultPollingInterval)
	res, err := h.Tasks.GetNext(ctx, str(args, "agentId"), waitFor, pollEvery)
	if err != nil {
		return errResult(h.Logger, "get_next_task", err)
	}
	if h.Metrics != nil && !res.TimedOut {
		h.Metrics.TasksClaimed.Add(ctx, 1)
	}
	return success(Result{
		"taskId":      res.TaskID,
		"personaId":   res.PersonaID,
		"description": res.Description,
		"message":     res.Message,
		"timedOut":    res.TimedOut,
	})
}

func (h *Handlers) reportTaskCompletion(ctx context.Context, args map[string]any) Result {
	successFlag, _ := args["success"].(bool)
	err := h.Tasks.ReportCompletion(ctx, str(args, "taskId"), str(args, "agentId"), successFlag, str(args, "result"))
	if err != nil {
		return errResult(h.Logger, "report_task_completion", err)
	}
	if h.Metrics != nil {
		h.Metrics.TasksCompleted.Add(ctx, 1)
	}
	return success(nil)
}

func (h *Handlers) getTaskStatus(ctx context.Context, args map[string]any) Result {
	task, err := h.Tasks.GetStatus(ctx, str(args, "taskId"))
	if err != nil {
		return errResult(h.Logger, "get_task_status", err)
	}
	return success(taskToMap(task))
}

func (h *Handlers) getTasksByStatus(ctx context.Context, args map[string]any) Result {
	tasks, err := h.Tasks.GetByStatus(ctx, persistence.TaskStatus(str(args, "status")))
	if err != nil {
		return errResult(h.Logger, "get_tasks_by_status", err)
	}
	out := make([]Result, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToMap(t))
	}
	return success(Result{"tasks": out})
}

func (h *Handlers) saveMemory(ctx context.Context, args map[string]any) Result {
	entry, err := h.Memory.Save(ctx, coordination.SaveRequest{
		Key:       str(args, "key"),
		Value:     str(args, "value"),
		Namespace: str(args, "namespace"),
		Type:      str(args, "type"),
		Metadata:  strPtrArg(args, "metadata"),
	})
	if err != nil {
		return errResult(h.Logger, "save_memory", err)
	}
	return success(Result{"entryId": entry.ID})
}

func (h *Handlers) readMemory(ctx context.Context, args map[string]any) Result {
	entry, found, err := h.Memory.Read(ctx, str(args, "namespace"), str(args, "key"))
	if err != nil {
		return errResult(h.Logger, "read_memory", err)
	}
	if !found {
		return success(Result{"found": false})
	}
	return success(memoryToMap(entry, true))
}

func (h *Handlers) listMemory(ctx context.Context, args map[string]any) Result {
	entries, err := h.Memory.List(ctx, str(args, "namespace"))
	if err != nil {
		return errResult(h.Logger, "list_memory", err)
	}
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, memoryToMap(e, true))
	}
	return success(Result{"entries": out})
}

func (h *Handlers) waitForMemoryKey(ctx context.Context, args map[string]any) Result {
	timeout := millis(args, "timeoutMs", coordination.DefaultMemoryWait)
	entry, err := h.Memory.WaitForKey(ctx, str(args, "namespace"), str(args, "key"), timeout)
	if err != nil {
		return errResult(h.Logger, "wait_for_memory_key", err)
	}
	return success(memoryToMap(entry, true))
}

func agentsToMaps(agents []persistence.Agent) []Result {
	out := make([]Result, 0, len(agents))
	for _, a := range agents {
		out = append(out, Result{
			"agentId":          a.ID,
			"persona":          a.PersonaID,
			"agentType":        a.AgentType,
			"workingDirectory": a.WorkingDirectory,
			"status":           string(a.Status),
			"lastHeartbeat":    a.LastHeartbeat,
		})
	}
	return out
}

func taskToMap(t persistence.WorkItem) Result {
	r := Result{
		"taskId":      t.ID,
		"status":      string(t.Status),
		"description": t.Description,
		"priority":    int(t.Priority),
		"createdAt":   t.CreatedAt,
	}
	if t.AgentID != nil {
		r["agentId"] = *t.AgentID
	}
	if t.PersonaID != nil {
		r["personaId"] = *t.PersonaID
	}
	if t.Result != nil {
		r["result"] = *t.Result
	}
	return r
}

func memoryToMap(e persistence.MemoryEntry, found bool) Result {
	return Result{
		"found":         found,
		"key":           e.Key,
		"namespace":     e.Namespace,
		"value":         e.Value,
		"type":          e.Type,
		"size":          e.Size,
		"accessCount":   e.AccessCount,
		"lastUpdatedAt": e.LastUpdatedAt,
	}
}

package persistence

import (
	"database/sql"
	"fmt"
	"time"
)

const taskSelectColumns = `SELECT
	id, agent_id, status, persona_id, persona_id_norm,
	description, priority, created_at, started_at, completed_at, result`

// CreateTask inserts a new work item in TaskPending status.
func CreateTask(w *WriteScope, t WorkItem) error {
	if t.PersonaID != nil {
		norm := NormalizePersona(*t.PersonaID)
		t.PersonaIDNorm = &norm
	}
	_, err := w.exec(`
		INSERT INTO tasks (
			id, agent_id, status, persona_id, persona_id_norm,
			description, priority, created_at, started_at, completed_at, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AgentID, t.Status, t.PersonaID, t.PersonaIDNorm,
		t.Description, t.Priority, t.CreatedAt, t.StartedAt, t.CompletedAt, t.Result,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ClaimNextPendingTask atomically assigns the highest-priority, oldest
// eligible pending task to agentID and returns it. Eligibility is: status
// Pending, and either untagged (persona_id IS NULL) or tagged for
// agentPersona (case-insensitive). Tie-break order is Priority DESC,
// CreatedAt ASC, Id ASC. Returns ErrNotFound if nothing is eligible.
//
// The UPDATE...WHERE id = (SELECT ...) form makes the read-then-write
// atomic under SQLite's single-writer transaction, so two agents racing
// this call never claim the same row.
func ClaimNextPendingTask(w *WriteScope, agentID, agentPersonaNorm string, at time.Time) (WorkItem, error) {
	res, err := w.exec(`
		UPDATE tasks SET agent_id = ?, status = ?, started_at = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = ?
			  AND (persona_id_norm IS NULL OR persona_id_norm = ?)
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		)`, agentID, TaskInProgress, at, TaskPending, agentPersonaNorm)
	if err != nil {
		return WorkItem{}, fmt.Errorf("claim next task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return WorkItem{}, fmt.Errorf("claim next task rows affected: %w", err)
	}
	if n == 0 {
		return WorkItem{}, ErrNotFound
	}

	row := w.queryRow(taskSelectColumns+` FROM tasks WHERE agent_id = ? AND status = ? ORDER BY started_at DESC LIMIT 1`, agentID, TaskInProgress)
	return scanTask(row)
}

// ReportTaskCompletion marks an InProgress task Completed or Failed and
// records its result. Returns ErrInvalidState if the task is not currently
// InProgress.
func ReportTaskCompletion(w *WriteScope, id string, success bool, result string, at time.Time) error {
	status := TaskCompleted
	if !success {
		status = TaskFailed
	}
	res, err := w.exec(`
		UPDATE tasks SET status = ?, completed_at = ?, result = ?
		WHERE id = ? AND status = ?`,
		status, at, result, id, TaskInProgress)
	if err != nil {
		return fmt.Errorf("report task completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("report task completion rows affected: %w", err)
	}
	if n == 0 {
		// Either the id doesn't exist or it isn't InProgress; disambiguate
		// for the caller so it can raise the right CoordinationError kind.
		if _, getErr := GetTask(w.asRead(), id); getErr != nil {
			return getErr
		}
		return ErrInvalidState
	}
	return nil
}

// GetTask loads one task by id.
func GetTask(r ReadScope, id string) (WorkItem, error) {
	row := r.queryRow(taskSelectColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetTasksByStatus returns all tasks with the given status, oldest first.
func GetTasksByStatus(r ReadScope, status TaskStatus) ([]WorkItem, error) {
	rows, err := r.query(taskSelectColumns+` FROM tasks WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("get tasks by status: %w", err)
	}
	defer rows.Close()

	var out []WorkItem
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ErrInvalidState signals a mutation attempted against a task not in the
// required lifecycle state.
var ErrInvalidState = fmt.Errorf("persistence: invalid state transition")

func scanTask(row *sql.Row) (WorkItem, error) {
	t, err := scanTaskInto(row)
	if err == sql.ErrNoRows {
		return WorkItem{}, ErrNotFound
	}
	return t, err
}

func scanTaskRows(rows *sql.Rows) (WorkItem, error) {
	return scanTaskInto(rows)
}

func scanTaskInto(s rowScanner) (WorkItem, error) {
	var t WorkItem
	err := s.Scan(
		&t.ID, &t.AgentID, &t.Status, &t.PersonaID, &t.PersonaIDNorm,
		&t.Description, &t.Priority, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.Result,
	)
	if err != nil {
		return WorkItem{}, err
	}
	return t, nil
}

// asRead lets a WriteScope double as a ReadScope for lookups performed
// within the same transaction (so a read after a failed conditional
// UPDATE sees its own in-flight writes).
func (w *WriteScope) asRead() ReadScope {
	return ReadScope{q: w.tx, ctx: w.ctx}
}

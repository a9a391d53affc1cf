package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by single-row lookups when no matching row exists.
var ErrNotFound = errors.New("persistence: not found")

// RegisterAgent inserts a new agent row in AgentStarting status.
func RegisterAgent(w *WriteScope, a Agent) error {
	a.PersonaIDNorm = NormalizePersona(a.PersonaID)
	_, err := w.exec(`
		INSERT INTO agents (
			id, persona_id, persona_id_norm, agent_type, working_directory,
			status, process_id, model, worktree_name,
			registered_at, last_heartbeat, started_at, stopped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PersonaID, a.PersonaIDNorm, a.AgentType, a.WorkingDirectory,
		a.Status, a.ProcessID, a.Model, a.WorktreeName,
		a.RegisteredAt, a.LastHeartbeat, a.StartedAt, a.StoppedAt,
	)
	if err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	return nil
}

// GetAgent loads one agent by id, returning ErrNotFound if absent.
func GetAgent(r ReadScope, id string) (Agent, error) {
	row := r.queryRow(agentSelectColumns+` FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// UpdateAgentStatus transitions an agent to newStatus. Terminal statuses are
// immutable: calling this on an agent already in a terminal state returns
// ErrInvalidState-shaped behavior via the caller (service layer), not here —
// this function performs the raw update and lets the caller enforce
// invariants by checking GetAgent first within the same write scope.
func UpdateAgentStatus(w *WriteScope, id string, status AgentStatus, at time.Time) error {
	var stoppedAt any
	if status.IsTerminal() {
		stoppedAt = at
	}
	res, err := w.exec(`
		UPDATE agents SET status = ?, stopped_at = COALESCE(stopped_at, ?)
		WHERE id = ?`, status, stoppedAt, id)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return requireRowsAffected(res, "agent", id)
}

// RecordHeartbeat bumps last_heartbeat and, if the agent was Unhealthy,
// transitions it back to Running.
func RecordHeartbeat(w *WriteScope, id string, at time.Time) error {
	res, err := w.exec(`
		UPDATE agents
		SET last_heartbeat = ?,
		    status = CASE WHEN status = ? THEN ? ELSE status END
		WHERE id = ?`, at, AgentUnhealthy, AgentRunning, id)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return requireRowsAffected(res, "agent", id)
}

// SweepUnhealthyAgents transitions every active agent whose last_heartbeat
// is older than cutoff into AgentUnhealthy, returning the affected ids.
func SweepUnhealthyAgents(w *WriteScope, cutoff time.Time) ([]string, error) {
	rows, err := w.query(`
		SELECT id FROM agents
		WHERE last_heartbeat < ? AND status IN (?, ?, ?)`,
		cutoff, AgentStarting, AgentRunning, AgentStopping)
	if err != nil {
		return nil, fmt.Errorf("sweep select: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sweep scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sweep rows: %w", err)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := w.exec(`UPDATE agents SET status = ? WHERE id = ?`, AgentUnhealthy, id); err != nil {
			return nil, fmt.Errorf("sweep update %s: %w", id, err)
		}
	}
	return ids, nil
}

// ListAgents returns all agents, optionally filtered by persona (case
// insensitive) when persona is non-empty.
func ListAgents(r ReadScope, persona string) ([]Agent, error) {
	var rows *sql.Rows
	var err error
	if persona != "" {
		rows, err = r.query(agentSelectColumns+` FROM agents WHERE persona_id_norm = ? ORDER BY registered_at ASC`, NormalizePersona(persona))
	} else {
		rows, err = r.query(agentSelectColumns + ` FROM agents ORDER BY registered_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const agentSelectColumns = `SELECT
	id, persona_id, persona_id_norm, agent_type, working_directory,
	status, process_id, model, worktree_name,
	registered_at, last_heartbeat, started_at, stopped_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row *sql.Row) (Agent, error) {
	a, err := scanAgentInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return a, err
}

func scanAgentRows(rows *sql.Rows) (Agent, error) {
	return scanAgentInto(rows)
}

func scanAgentInto(s rowScanner) (Agent, error) {
	var a Agent
	err := s.Scan(
		&a.ID, &a.PersonaID, &a.PersonaIDNorm, &a.AgentType, &a.WorkingDirectory,
		&a.Status, &a.ProcessID, &a.Model, &a.WorktreeName,
		&a.RegisteredAt, &a.LastHeartbeat, &a.StartedAt, &a.StoppedAt,
	)
	if err != nil {
		return Agent{}, err
	}
	return a, nil
}

func requireRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

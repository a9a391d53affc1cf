package persistence

import (
	"fmt"
	"time"
)

// AppendEvent inserts one append-only EventLog row. It is the single
// write path for audit history; nothing ever updates or deletes a row
// once written.
func AppendEvent(w *WriteScope, e EventLogEntry) error {
	_, err := w.exec(`
		INSERT INTO event_log (
			event_type, timestamp, actor, correlation_id, entity_id, entity_type,
			severity, payload, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventType, e.Timestamp, e.Actor, e.CorrelationID, e.EntityID, e.EntityType,
		e.Severity, e.Payload, e.Tags,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit most recent event log rows, optionally
// filtered to one entity (entityType/entityID), newest first. limit <= 0
// means no bound.
func ListEvents(r ReadScope, entityType, entityID string, since time.Time, limit int) ([]EventLogEntry, error) {
	query := `SELECT id, event_type, timestamp, actor, correlation_id, entity_id, entity_type, severity, payload, tags
		FROM event_log WHERE timestamp >= ?`
	args := []any{since}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventLogEntry
	for rows.Next() {
		var e EventLogEntry
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.Timestamp, &e.Actor, &e.CorrelationID, &e.EntityID, &e.EntityType,
			&e.Severity, &e.Payload, &e.Tags,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const memorySelectColumns = `SELECT
	id, namespace, key, value, type, metadata, is_compressed, size,
	created_at, last_updated_at, accessed_at, access_count`

// SaveMemory upserts a (namespace, key) entry. On update, Size and
// LastUpdatedAt are refreshed but CreatedAt, AccessedAt and AccessCount are
// preserved.
func SaveMemory(w *WriteScope, namespace, key, value, typ string, metadata *string, at time.Time) (MemoryEntry, error) {
	size := int64(len(value))
	id := uuid.NewString()
	_, err := w.exec(`
		INSERT INTO memory_entries (
			id, namespace, key, value, type, metadata, is_compressed, size,
			created_at, last_updated_at, accessed_at, access_count
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, NULL, 0)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			type = excluded.type,
			metadata = excluded.metadata,
			size = excluded.size,
			last_updated_at = excluded.last_updated_at`,
		id, namespace, key, value, typ, metadata, size, at, at)
	if err != nil {
		return MemoryEntry{}, fmt.Errorf("save memory: %w", err)
	}
	row := w.queryRow(memorySelectColumns+` FROM memory_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return scanMemory(row)
}

// ReadMemory loads one entry by (namespace, key) and bumps its access
// bookkeeping. Returns ErrNotFound if absent.
func ReadMemory(w *WriteScope, namespace, key string, at time.Time) (MemoryEntry, error) {
	row := w.queryRow(memorySelectColumns+` FROM memory_entries WHERE namespace = ? AND key = ?`, namespace, key)
	entry, err := scanMemory(row)
	if err != nil {
		return MemoryEntry{}, err
	}
	if _, err := w.exec(`
		UPDATE memory_entries SET accessed_at = ?, access_count = access_count + 1
		WHERE namespace = ? AND key = ?`, at, namespace, key); err != nil {
		return MemoryEntry{}, fmt.Errorf("bump memory access: %w", err)
	}
	entry.AccessedAt = &at
	entry.AccessCount++
	return entry, nil
}

// PeekMemory loads one entry without mutating access bookkeeping, used by
// WaitForKey's store re-check after a wakeup.
func PeekMemory(r ReadScope, namespace, key string) (MemoryEntry, error) {
	row := r.queryRow(memorySelectColumns+` FROM memory_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return scanMemory(row)
}

// ListMemory returns all entries in a namespace, most recently updated
// first.
func ListMemory(r ReadScope, namespace string) ([]MemoryEntry, error) {
	rows, err := r.query(memorySelectColumns+` FROM memory_entries WHERE namespace = ? ORDER BY last_updated_at DESC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	var out []MemoryEntry
	for rows.Next() {
		e, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanMemory(row *sql.Row) (MemoryEntry, error) {
	e, err := scanMemoryInto(row)
	if err == sql.ErrNoRows {
		return MemoryEntry{}, ErrNotFound
	}
	return e, err
}

func scanMemoryRows(rows *sql.Rows) (MemoryEntry, error) {
	return scanMemoryInto(rows)
}

func scanMemoryInto(s rowScanner) (MemoryEntry, error) {
	var e MemoryEntry
	err := s.Scan(
		&e.ID, &e.Namespace, &e.Key, &e.Value, &e.Type, &e.Metadata, &e.IsCompressed, &e.Size,
		&e.CreatedAt, &e.LastUpdatedAt, &e.AccessedAt, &e.AccessCount,
	)
	if err != nil {
		return MemoryEntry{}, err
	}
	return e, nil
}

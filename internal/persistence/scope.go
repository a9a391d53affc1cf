package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// queryer is satisfied by both *sql.DB and *sql.Tx, letting read helpers run
// against either a plain connection or an in-flight write transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is the write-side counterpart of queryer.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OperationScope is the single handle an MCP tool handler opens for the
// duration of one logical operation (e.g. "claim the next task") and
// threads into every service call it makes. It hands out a ReadScope
// freely — SQLite's WAL mode lets reads proceed against the last
// committed snapshot without blocking on an in-flight writer — and
// lazily opens one shared WriteScope the first time a mutation is
// needed, so an operation that touches several tables still commits or
// rolls back as a single unit.
//
// Per DESIGN NOTES, this replaces an ambient ctx-carried transaction:
// callers see the scope explicitly in every service method signature.
type OperationScope struct {
	store *Store
	ctx   context.Context
	write *WriteScope
}

// BeginOperation opens a new OperationScope. The caller must call
// Complete (success) or Close (abort/cleanup) exactly once.
func (s *Store) BeginOperation(ctx context.Context) *OperationScope {
	return &OperationScope{store: s, ctx: ctx}
}

// Read returns a ReadScope backed by the write transaction if one is
// already open (so a handler sees its own uncommitted writes), or by the
// plain database connection otherwise.
func (op *OperationScope) Read() ReadScope {
	if op.write != nil {
		return ReadScope{q: op.write.tx, ctx: op.ctx}
	}
	return ReadScope{q: op.store.db, ctx: op.ctx}
}

// Write lazily begins the shared transaction for this operation and
// returns it. Subsequent calls within the same operation return the same
// WriteScope, so e.g. claiming a task and emitting its event log row
// commit atomically together.
func (op *OperationScope) Write() (*WriteScope, error) {
	if op.write != nil {
		return op.write, nil
	}
	var tx *sql.Tx
	err := retryOnBusy(op.ctx, func() error {
		var beginErr error
		tx, beginErr = op.store.db.BeginTx(op.ctx, nil)
		return beginErr
	})
	if err != nil {
		return nil, fmt.Errorf("begin write scope: %w", err)
	}
	op.write = &WriteScope{tx: tx, ctx: op.ctx}
	return op.write, nil
}

// Complete commits the write scope if one was opened. It is a no-op for
// read-only operations.
func (op *OperationScope) Complete() error {
	if op.write == nil {
		return nil
	}
	return op.write.commit()
}

// Close rolls back an uncommitted write scope. Safe to call after
// Complete has already succeeded (rollback on a committed tx is a no-op
// error that Close swallows), so callers can unconditionally `defer
// op.Close()` right after BeginOperation.
func (op *OperationScope) Close() {
	if op.write == nil {
		return
	}
	op.write.rollback()
}

// ReadScope is a read-only view, either the plain connection or an
// operation's in-flight transaction.
type ReadScope struct {
	q   queryer
	ctx context.Context
}

func (r ReadScope) queryRow(query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(r.ctx, query, args...)
}

func (r ReadScope) query(query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(r.ctx, query, args...)
}

// WriteScope wraps the one *sql.Tx shared by every mutation within an
// OperationScope.
type WriteScope struct {
	tx        *sql.Tx
	ctx       context.Context
	completed bool
}

func (w *WriteScope) exec(query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryOnBusy(w.ctx, func() error {
		var execErr error
		res, execErr = w.tx.ExecContext(w.ctx, query, args...)
		return execErr
	})
	return res, err
}

func (w *WriteScope) queryRow(query string, args ...any) *sql.Row {
	return w.tx.QueryRowContext(w.ctx, query, args...)
}

func (w *WriteScope) query(query string, args ...any) (*sql.Rows, error) {
	return w.tx.QueryContext(w.ctx, query, args...)
}

func (w *WriteScope) commit() error {
	if w.completed {
		return nil
	}
	w.completed = true
	return w.tx.Commit()
}

func (w *WriteScope) rollback() {
	if w.completed {
		return
	}
	w.completed = true
	_ = w.tx.Rollback()
}

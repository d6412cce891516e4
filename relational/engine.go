// Package relational mirrors normalized rows into a relational store.
//
// The ledger table is dropped and recreated on every sync; reference tables are created
// when absent and only receive rows whose key is new. Each table is written in its own
// transaction so a failure in one table leaves earlier tables committed.
package relational

import (
	"context"
	"database/sql"
	"fmt"

	"agrofin/finsync/appcontext"
	"agrofin/finsync/model"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const defaultChunkSize = 100

// Engine writes rows into the relational store.
type Engine struct {
	db        *sql.DB
	dialect   Dialect
	chunkSize int
}

// NewEngine wraps an open database handle.
func NewEngine(db *sql.DB, dialect Dialect) *Engine {
	return &Engine{db: db, dialect: dialect, chunkSize: defaultChunkSize}
}

// Open connects to the relational store and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Engine, error) {
	logger := appcontext.LoggerFromContext(ctx)

	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Attempting to connect to relational store", "driver", driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	logger.InfoContext(ctx, "Successfully established connection to relational store", "driver", driver)
	return NewEngine(db, dialect), nil
}

// DB exposes the underlying handle for read-side consumers.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Close closes the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// SyncLedgerEntries replaces the ledger table with rows. Duplicate keys keep the last row.
func (e *Engine) SyncLedgerEntries(ctx context.Context, rows [][]any) (int64, error) {
	return e.replaceTable(ctx, model.Ledger, dedupeLastWins(rows))
}

// SyncCategories inserts category rows whose key is not yet present.
func (e *Engine) SyncCategories(ctx context.Context, rows [][]any) (int64, error) {
	return e.insertIfAbsent(ctx, model.Categories, rows)
}

// SyncAccounts inserts account rows whose key is not yet present.
func (e *Engine) SyncAccounts(ctx context.Context, rows [][]any) (int64, error) {
	return e.insertIfAbsent(ctx, model.Accounts, rows)
}

// RecordRun appends a run to the sync_runs table, creating it when absent.
func (e *Engine) RecordRun(ctx context.Context, run model.SyncRun) error {
	_, err := e.insertIfAbsent(ctx, model.SyncRuns, [][]any{run.Row()})
	return err
}

func (e *Engine) replaceTable(ctx context.Context, t model.Table, rows [][]any) (int64, error) {
	var written int64
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, e.dialect.dropTable(t)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", t.Name, err)
		}
		if _, err := tx.ExecContext(ctx, e.dialect.createTable(t, false)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		n, err := e.bulkInsert(ctx, tx, t, rows, conflictUpdate)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (e *Engine) insertIfAbsent(ctx context.Context, t model.Table, rows [][]any) (int64, error) {
	var written int64
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, e.dialect.createTable(t, true)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
		n, err := e.bulkInsert(ctx, tx, t, rows, conflictIgnore)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (e *Engine) bulkInsert(
	ctx context.Context,
	tx *sql.Tx,
	t model.Table,
	rows [][]any,
	policy conflictPolicy,
) (int64, error) {
	var written int64
	for start := 0; start < len(rows); start += e.chunkSize {
		end := min(start+e.chunkSize, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(t.Columns))
		for i, row := range chunk {
			if len(row) != len(t.Columns) {
				return written, fmt.Errorf("row %d for table %s has %d values, want %d",
					start+i, t.Name, len(row), len(t.Columns))
			}
			args = append(args, row...)
		}

		result, err := tx.ExecContext(ctx, e.dialect.insertStatement(t, len(chunk), policy), args...)
		if err != nil {
			return written, fmt.Errorf("failed to insert rows %d-%d into %s: %w", start, end-1, t.Name, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("failed to count rows written to %s: %w", t.Name, err)
		}
		written += affected
	}
	return written, nil
}

func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			appcontext.LoggerFromContext(ctx).ErrorContext(ctx, "Error rolling back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// dedupeLastWins drops earlier rows that share a key with a later row, keeping first-seen order.
func dedupeLastWins(rows [][]any) [][]any {
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[keyOf(row)] = i
	}
	if len(last) == len(rows) {
		return rows
	}

	out := make([][]any, 0, len(last))
	seen := make(map[string]bool, len(last))
	for _, row := range rows {
		key := keyOf(row)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rows[last[key]])
	}
	return out
}

func keyOf(row []any) string {
	if len(row) == 0 {
		return ""
	}
	return fmt.Sprint(row[0])
}

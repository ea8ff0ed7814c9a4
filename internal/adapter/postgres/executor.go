package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs validated queries inside a read-only transaction. The
// guard already guarantees the statement is a single SELECT; the
// read-only access mode is the database-level backstop behind it.
type Executor struct {
	pool         *pgxpool.Pool
	maxRows      int
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		pool:         pool,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	// EXPLAIN statements cannot be wrapped in a subquery.
	wrappedSQL := sql
	if !isExplain(sql) {
		wrappedSQL = fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", sql, e.maxRows)
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Enforce the timeout server-side too, so PostgreSQL cancels the
	// query even if the Go context is cancelled first. SET LOCAL scopes
	// to this transaction only.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, wrappedSQL)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	results, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return results, nil
}

func isExplain(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "EXPLAIN")
}

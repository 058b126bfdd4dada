package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/port"
)

// ErrNoDatabase is returned when neither the caller nor the connection URL names a database.
var ErrNoDatabase = errors.New("no database selected")

// Executor runs accepted statements inside read-only transactions. Statements
// are sent unmodified: MySQL rejects derived tables with duplicate column
// names and cannot wrap SHOW or DESCRIBE, so the row cap is applied while
// reading instead of with a LIMIT wrapper.
type Executor struct {
	db              *sql.DB
	defaultDatabase string
	maxRows         int
	queryTimeout    time.Duration
}

func NewExecutor(db *sql.DB, defaultDatabase string, maxRows int, queryTimeout time.Duration) *Executor {
	return &Executor{
		db:              db,
		defaultDatabase: defaultDatabase,
		maxRows:         maxRows,
		queryTimeout:    queryTimeout,
	}
}

func (e *Executor) Execute(ctx context.Context, database, query string) (*port.QueryResult, error) {
	if database == "" {
		database = e.defaultDatabase
	}
	if database == "" {
		return nil, ErrNoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	// USE and the session timeout are per connection, so pin one for the whole call.
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE "+quoteIdent(database)); err != nil {
		return nil, fmt.Errorf("selecting database %q: %w", database, err)
	}
	// MariaDB does not know max_execution_time; the context deadline still applies there.
	_, _ = conn.ExecContext(ctx, fmt.Sprintf("SET SESSION max_execution_time = %d", e.queryTimeout.Milliseconds()))

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	result, err := rowsToResult(rows, e.maxRows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guillermoBallester/querygate/internal/core/domain"
)

const querySchemaColumns = `
	SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = ?
	ORDER BY TABLE_NAME, ORDINAL_POSITION`

const queryListDatabases = `
	SELECT SCHEMA_NAME
	FROM information_schema.SCHEMATA
	WHERE SCHEMA_NAME NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
	ORDER BY SCHEMA_NAME`

const queryTableComments = `
	SELECT TABLE_NAME, TABLE_COMMENT
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = ? AND TABLE_COMMENT <> ''
	ORDER BY TABLE_NAME`

// SchemaProvider reads table and column names from information_schema.
type SchemaProvider struct {
	db              *sql.DB
	defaultDatabase string
}

func NewSchemaProvider(db *sql.DB, defaultDatabase string) *SchemaProvider {
	return &SchemaProvider{db: db, defaultDatabase: defaultDatabase}
}

func (p *SchemaProvider) resolve(database string) (string, error) {
	if database == "" {
		database = p.defaultDatabase
	}
	if database == "" {
		return "", ErrNoDatabase
	}
	return database, nil
}

func (p *SchemaProvider) Snapshot(ctx context.Context, database string) (domain.SchemaSnapshot, error) {
	database, err := p.resolve(database)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, querySchemaColumns, database)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %q: %w", database, err)
	}
	defer rows.Close()

	snapshot := domain.SchemaSnapshot{}
	for rows.Next() {
		var table string
		var col domain.Column
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		snapshot[table] = append(snapshot[table], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	return snapshot, nil
}

func (p *SchemaProvider) ListDatabases(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, queryListDatabases)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning database row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableComments returns table comments keyed by table name.
func (p *SchemaProvider) TableComments(ctx context.Context, database string) (map[string]string, error) {
	database, err := p.resolve(database)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, queryTableComments, database)
	if err != nil {
		return nil, fmt.Errorf("fetching table comments: %w", err)
	}
	defer rows.Close()

	comments := map[string]string{}
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, fmt.Errorf("scanning comment row: %w", err)
		}
		comments[name] = comment
	}
	return comments, rows.Err()
}

func (p *SchemaProvider) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging mysql: %w", err)
	}
	return nil
}

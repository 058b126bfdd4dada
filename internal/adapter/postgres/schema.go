package postgres

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is used when the caller names no database.
const DefaultSchema = "public"

// SchemaProvider reads table and column names from information_schema.
// In PostgreSQL a "database" argument selects a schema of the connected database.
type SchemaProvider struct {
	pool          *pgxpool.Pool
	defaultSchema string
}

func NewSchemaProvider(pool *pgxpool.Pool, defaultSchema string) *SchemaProvider {
	if defaultSchema == "" {
		defaultSchema = DefaultSchema
	}
	return &SchemaProvider{pool: pool, defaultSchema: defaultSchema}
}

func (p *SchemaProvider) resolve(database string) string {
	if database == "" {
		return p.defaultSchema
	}
	return database
}

func (p *SchemaProvider) Snapshot(ctx context.Context, database string) (domain.SchemaSnapshot, error) {
	schema := p.resolve(database)
	rows, err := p.pool.Query(ctx, querySchemaColumns, schema)
	if err != nil {
		return nil, fmt.Errorf("listing columns of schema %q: %w", schema, err)
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
	rows, err := p.pool.Query(ctx, queryListSchemas, systemSchemas...)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableComments returns COMMENT ON TABLE text keyed by table name.
func (p *SchemaProvider) TableComments(ctx context.Context, database string) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, queryTableComments, p.resolve(database))
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
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging postgres: %w", err)
	}
	return nil
}

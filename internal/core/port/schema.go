package port

import (
	"context"

	"github.com/guillermoBallester/querygate/internal/core/domain"
)

// SchemaProvider reads live catalog metadata from the target database.
// An empty database name selects the provider's default.
type SchemaProvider interface {
	Snapshot(ctx context.Context, database string) (domain.SchemaSnapshot, error)
	ListDatabases(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

// TableDescriber is implemented by providers that know human descriptions of
// tables, keyed by table name.
type TableDescriber interface {
	TableComments(ctx context.Context, database string) (map[string]string, error)
}

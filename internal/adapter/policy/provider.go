package policy

import (
	"context"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
)

// DescribingProvider decorates a SchemaProvider with policy table descriptions.
// Snapshots pass through untouched so the gatekeeper always sees the live schema.
type DescribingProvider struct {
	inner           port.SchemaProvider
	policy          *Policy
	defaultDatabase string // resolves "database.table" keys when the caller names no database
}

// NewDescribingProvider wraps an existing SchemaProvider with context enrichment.
func NewDescribingProvider(inner port.SchemaProvider, pol *Policy, defaultDatabase string) *DescribingProvider {
	return &DescribingProvider{inner: inner, policy: pol, defaultDatabase: defaultDatabase}
}

func (p *DescribingProvider) Snapshot(ctx context.Context, database string) (domain.SchemaSnapshot, error) {
	return p.inner.Snapshot(ctx, database)
}

func (p *DescribingProvider) ListDatabases(ctx context.Context) ([]string, error) {
	return p.inner.ListDatabases(ctx)
}

func (p *DescribingProvider) Ping(ctx context.Context) error {
	return p.inner.Ping(ctx)
}

func (p *DescribingProvider) TableComments(ctx context.Context, database string) (map[string]string, error) {
	var comments map[string]string
	if d, ok := p.inner.(port.TableDescriber); ok {
		var err error
		comments, err = d.TableComments(ctx, database)
		if err != nil {
			return nil, err
		}
	}
	if database == "" {
		database = p.defaultDatabase
	}
	return MergeDescriptions(comments, p.policy.Context, database), nil
}

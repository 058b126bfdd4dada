package port

import "github.com/guillermoBallester/querygate/internal/core/domain"

// QueryGate decides whether a query may run against a schema.
// Implementations must be pure: no I/O and no retained state.
type QueryGate interface {
	Evaluate(query string, schema domain.SchemaSnapshot) domain.Decision
}

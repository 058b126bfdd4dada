package port

import "context"

// AuditEntry represents a single auditable gatekeeper decision and,
// when the query was accepted, its execution.
type AuditEntry struct {
	QueryID      string
	Tool         string
	Database     string
	SQL          string
	Preview      string
	Accepted     bool
	Reason       string
	Tables       []string
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

package port

import "context"

// QueryResult is what a statement produced. Row-returning statements fill
// Columns and Rows; anything else reports RowCount and Message.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Message  string           `json:"message,omitempty"`
}

// QueryExecutor runs an already-accepted statement inside a read-only transaction.
type QueryExecutor interface {
	Execute(ctx context.Context, database, sql string) (*QueryResult, error)
}

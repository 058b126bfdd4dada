package postgres

import "strings"

// systemSchemas are never offered as query targets.
var systemSchemas = []any{"pg_catalog", "information_schema", "pg_toast"}

// quoteIdent quotes a SQL identifier to prevent injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

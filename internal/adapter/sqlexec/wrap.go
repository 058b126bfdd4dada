// Package sqlexec holds statement rewriting shared by the database executors.
package sqlexec

import (
	"fmt"
	"strings"
)

// IsExplain reports whether sql is an EXPLAIN statement.
func IsExplain(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "EXPLAIN")
}

// LimitWrap caps the rows a statement can return by wrapping it in a
// subquery. EXPLAIN statements cannot be wrapped and are returned as is.
// A single trailing semicolon is dropped so the statement can sit inside parentheses.
func LimitWrap(sql string, maxRows int) string {
	if IsExplain(sql) {
		return sql
	}
	inner := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	return fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", inner, maxRows)
}

package mysql

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/guillermoBallester/querygate/internal/core/port"
)

// rowsToResult converts sql.Rows into a QueryResult keyed by column name,
// reading at most maxRows rows. Text and blob columns arrive as []byte and
// are returned as strings.
func rowsToResult(rows *sql.Rows, maxRows int) (*port.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	if len(columns) == 0 {
		return &port.QueryResult{Message: "statement executed, no result set"}, nil
	}
	columns = uniqueColumns(columns)
	result := &port.QueryResult{Columns: columns}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(result.Rows) == maxRows {
			result.Message = fmt.Sprintf("result truncated to %d rows", maxRows)
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// uniqueColumns suffixes repeated names (id, id_2, id_3) so a join that
// selects the same column name twice does not lose values in the row map.
func uniqueColumns(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, len(columns))
	for i, col := range columns {
		name := col
		for n := 2; seen[name]; n++ {
			name = col + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

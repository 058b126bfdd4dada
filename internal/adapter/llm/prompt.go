// Package llm holds the pieces shared by the SQL generator backends: the
// prompt template and retry with backoff.
package llm

import (
	"fmt"
	"strings"

	"github.com/guillermoBallester/querygate/internal/core/port"
)

// Default generation parameters. Low temperature and top_p keep the model
// close to the schema it was given.
const (
	DefaultTemperature = 0.1
	DefaultTopP        = 0.1
	DefaultMaxTokens   = 1024
)

const generationRules = `## Generation Rules
1. You must use the exact table names and column names provided.
2. Return only valid SQL statements without any explanations or comments.
3. When WHERE conditions are used, ensure correct data type comparison.
4. If the query might return many results, automatically add LIMIT 250.
5. Use the standard date format: 'YYYY-MM-DD'.
6. Use single quotes for string comparison and treat case sensitively.
7. Only read data. Never write INSERT, UPDATE, DELETE, DROP, ALTER or TRUNCATE.

## Query Examples
Input: Find students whose last name starts with Zhang
Output: SELECT * FROM student WHERE name LIKE 'Zhang%'

Input: Find the top 10 students enrolled in 2023
Output: SELECT * FROM student WHERE enrollment_date BETWEEN '2023-01-01' AND '2023-12-31' LIMIT 10

Input: Count the number of students in each class
Output: SELECT class_id, COUNT(*) AS student_count FROM student GROUP BY class_id

## Special Instructions
Please avoid nested subqueries. Prefer these alternatives:
1. Use JOIN instead of subqueries in WHERE clauses.
2. Use GROUP BY and HAVING instead of correlated subqueries.
3. Use window functions to replace complex subqueries.

Don't: SELECT * FROM table1 WHERE id IN (SELECT id FROM table2)
Do: SELECT table1.* FROM table1 JOIN table2 ON table1.id = table2.id
`

// BuildPrompt renders the generation prompt for req. dialect names the SQL
// flavour the model must produce, e.g. "MySQL" or "PostgreSQL".
func BuildPrompt(dialect string, req port.GenerationRequest) string {
	if dialect == "" {
		dialect = "SQL"
	}

	var b strings.Builder
	b.WriteString("## Task Description\n")
	fmt.Fprintf(&b, "You are a professional SQL generator. Your task is to convert natural language queries into accurate %s statements.\n", dialect)
	b.WriteString("The current database contains the following schema:\n")
	writeSchema(&b, req)
	b.WriteString("\n")
	b.WriteString(generationRules)

	if req.PreviousSQL != "" {
		b.WriteString("\n## Previous Attempt\n")
		b.WriteString("The previous query failed. Fix it and return a corrected statement.\n")
		fmt.Fprintf(&b, "Query: %s\n", req.PreviousSQL)
		fmt.Fprintf(&b, "Error: %s\n", req.PreviousError)
	}

	b.WriteString("\n## Query to Convert\n")
	fmt.Fprintf(&b, "\"\"\"%s\"\"\"\n", req.Question)
	return b.String()
}

func writeSchema(b *strings.Builder, req port.GenerationRequest) {
	for _, table := range req.Schema.Tables() {
		cols := make([]string, 0, len(req.Schema[table]))
		for _, c := range req.Schema[table] {
			cols = append(cols, c.Name+" "+c.Type)
		}
		fmt.Fprintf(b, "- %s(%s)", table, strings.Join(cols, ", "))
		if desc := req.TableDescriptions[table]; desc != "" {
			fmt.Fprintf(b, " -- %s", desc)
		}
		b.WriteString("\n")
	}
}

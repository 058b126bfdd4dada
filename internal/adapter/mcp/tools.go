package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	drv "github.com/go-sql-driver/mysql"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "querygate"

// Tool descriptions
const (
	descTestConnection = "Check that the database behind this server is reachable."

	descListDatabases = "List the databases (MySQL) or schemas (PostgreSQL) that queries may target. " +
		"Pass one of these names as the database argument of the other tools."

	descGetSchema = "Return the tables of a database and their columns with types, as a JSON object " +
		"mapping table name to a list of {name, type}. Call this before writing SQL: " +
		"queries that reference no table in this schema are rejected."

	descCheckQuery = "Run the query gatekeeper on a SQL statement without executing it. " +
		"Returns the decision: accepted, the rejection reason when refused " +
		"(SENSITIVE_FIELD, INJECTION_SUSPECTED, NOT_READ_ONLY, NO_VALID_TABLE), " +
		"the referenced tables and a preview of the query."

	descQuery = "Execute a single read-only SQL query after it passes the gatekeeper. " +
		"Statements that modify data, touch sensitive columns such as password or salary, " +
		"contain stacked statements or comments, or reference no known table are refused. " +
		"A server-side row limit and query timeout are enforced."

	descAsk = "Answer a natural-language question about the data. The question is translated into SQL " +
		"by a language model, checked by the gatekeeper and executed. Returns the generated SQL with the results."

	descDatabaseParam = "Database (MySQL) or schema (PostgreSQL) name. Uses the server default when omitted."
)

// Deps are the services the tools call into. Ask may be nil, in which case
// the ask tool is not registered.
type Deps struct {
	Query  *service.QueryService
	Ask    *service.AskService
	Logger *slog.Logger
}

func RegisterTools(s *server.MCPServer, deps Deps) {
	s.AddTool(
		mcp.NewTool("test_connection",
			mcp.WithDescription(descTestConnection),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		testConnectionHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("list_databases",
			mcp.WithDescription(descListDatabases),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		listDatabasesHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("get_schema",
			mcp.WithDescription(descGetSchema),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
			mcp.WithString("table", mcp.Description("Only return this table (optional)")),
		),
		getSchemaHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("check_query",
			mcp.WithDescription(descCheckQuery),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("sql", mcp.Required(), mcp.Description("SQL statement to evaluate")),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
		),
		checkQueryHandler(deps),
	)

	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription(descQuery),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("sql", mcp.Required(), mcp.Description("SQL query to execute (read-only statements only)")),
			mcp.WithString("database", mcp.Description(descDatabaseParam)),
		),
		queryHandler(deps),
	)

	if deps.Ask != nil {
		s.AddTool(
			mcp.NewTool("ask",
				mcp.WithDescription(descAsk),
				mcp.WithReadOnlyHintAnnotation(true),
				mcp.WithString("question", mcp.Required(), mcp.Description("Question in natural language")),
				mcp.WithString("database", mcp.Description(descDatabaseParam)),
			),
			askHandler(deps),
		)
	}
}

// queryResponse is the JSON body returned by the query and ask tools.
type queryResponse struct {
	QueryID      string           `json:"query_id"`
	GeneratedSQL string           `json:"generated_sql,omitempty"`
	Attempts     int              `json:"attempts,omitempty"`
	CacheHit     bool             `json:"cache_hit,omitempty"`
	Tables       []string         `json:"tables"`
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int              `json:"row_count"`
	Message      string           `json:"message,omitempty"`
	Masked       []string         `json:"masked_columns,omitempty"`
}

func newQueryResponse(o *service.Outcome) queryResponse {
	resp := queryResponse{
		QueryID: o.QueryID,
		Tables:  o.Decision.Tables,
		Masked:  o.Masked,
		Rows:    []map[string]any{},
	}
	if o.Result != nil {
		resp.Columns = o.Result.Columns
		resp.RowCount = o.Result.RowCount
		resp.Message = o.Result.Message
		if o.Result.Rows != nil {
			resp.Rows = o.Result.Rows
		}
	}
	return resp
}

func testConnectionHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Query.Ping(ctx); err != nil {
			return mcp.NewToolResultError(sanitizeError(deps.Logger, err, "test connection")), nil
		}
		return jsonResult(map[string]string{"status": "Connection successful"})
	}
}

func listDatabasesHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbs, err := deps.Query.ListDatabases(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(deps.Logger, err, "list databases")), nil
		}
		if dbs == nil {
			dbs = []string{}
		}
		return jsonResult(dbs)
	}
}

func getSchemaHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		database := request.GetString("database", "")
		table := request.GetString("table", "")

		schema, err := deps.Query.Schema(ctx, database)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(deps.Logger, err, "get schema")), nil
		}

		if table != "" {
			cols, ok := schema[table]
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("table %q: %v", table, domain.ErrNotFound)), nil
			}
			schema = domain.SchemaSnapshot{table: cols}
		}
		return jsonResult(schema)
	}
}

func checkQueryHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := request.RequireString("sql")
		if err != nil || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		decision, err := deps.Query.Check(ctx, request.GetString("database", ""), sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(deps.Logger, err, "check query")), nil
		}
		return jsonResult(decision)
	}
}

func queryHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := request.RequireString("sql")
		if err != nil || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, "query")
		outcome, err := deps.Query.Execute(ctx, request.GetString("database", ""), sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(deps.Logger, err, "query")), nil
		}
		return jsonResult(newQueryResponse(outcome))
	}
}

func askHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithToolName(ctx, "ask")
		out, err := deps.Ask.Ask(ctx, request.GetString("database", ""), question)
		if err != nil {
			msg := sanitizeError(deps.Logger, err, "ask")
			if out != nil && out.GeneratedSQL != "" {
				msg = fmt.Sprintf("%s (generated SQL: %s)", msg, domain.Preview(out.GeneratedSQL))
			}
			return mcp.NewToolResultError(msg), nil
		}

		resp := newQueryResponse(out.Outcome)
		resp.GeneratedSQL = out.GeneratedSQL
		resp.Attempts = out.Attempts
		resp.CacheHit = out.CacheHit
		return jsonResult(resp)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// sanitizeError turns err into a message safe to hand back to the client.
// Gatekeeper rejections, input errors and database errors pass through so the
// caller can correct its query; anything else is logged and replaced.
func sanitizeError(logger *slog.Logger, err error, action string) string {
	if reason, ok := domain.RejectionReason(err); ok {
		return fmt.Sprintf("%v: %s", domain.ErrRejected, reason)
	}

	switch {
	case errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, service.ErrGenerationUnavailable):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "query timed out"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return "query timed out"
		}
		return fmt.Sprintf("%s failed: %s", action, pgErr.Message)
	}

	var myErr *drv.MySQLError
	if errors.As(err, &myErr) {
		if myErr.Number == 3024 {
			return "query timed out"
		}
		return fmt.Sprintf("%s failed: %s", action, myErr.Message)
	}

	logger.Error("tool call failed",
		slog.String("action", action),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("%s failed: internal error (check server logs)", action)
}

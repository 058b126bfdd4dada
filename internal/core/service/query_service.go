package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// Outcome is the decision and, when accepted, the execution result of one query.
type Outcome struct {
	QueryID  string            `json:"query_id"`
	Decision domain.Decision   `json:"decision"`
	Result   *port.QueryResult `json:"result,omitempty"`
	Masked   []string          `json:"masked_columns,omitempty"`
}

// QueryService puts the gatekeeper (domain) between callers and execution (infrastructure).
type QueryService struct {
	gate     port.QueryGate
	schemas  port.SchemaProvider
	executor port.QueryExecutor
	auditor  port.QueryAuditor
	logger   *slog.Logger
	masker   *domain.ResultMasker
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewQueryService(gate port.QueryGate, schemas port.SchemaProvider, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, masker *domain.ResultMasker, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		gate:     gate,
		schemas:  schemas,
		executor: executor,
		auditor:  auditor,
		logger:   logger,
		masker:   masker,
		tracer:   tracer,
		inst:     inst,
	}
}

// Schema returns a fresh snapshot of the database's tables.
func (s *QueryService) Schema(ctx context.Context, database string) (domain.SchemaSnapshot, error) {
	schema, err := s.schemas.Snapshot(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("fetching schema: %w", err)
	}
	return schema, nil
}

// Ping checks that the database is reachable.
func (s *QueryService) Ping(ctx context.Context) error {
	return s.schemas.Ping(ctx)
}

// ListDatabases returns the databases (MySQL) or schemas (Postgres) a caller may target.
func (s *QueryService) ListDatabases(ctx context.Context) ([]string, error) {
	dbs, err := s.schemas.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return dbs, nil
}

// TableDescriptions returns descriptions for the database's tables when the
// schema provider offers them. Failures are logged and yield nil.
func (s *QueryService) TableDescriptions(ctx context.Context, database string) map[string]string {
	describer, ok := s.schemas.(port.TableDescriber)
	if !ok {
		return nil
	}
	comments, err := describer.TableComments(ctx, database)
	if err != nil {
		s.logger.WarnContext(ctx, "fetching table descriptions failed",
			slog.String("db.namespace", database),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return comments
}

// Check evaluates sql against a fresh schema without executing it.
func (s *QueryService) Check(ctx context.Context, database, sql string) (domain.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Check",
		trace.WithAttributes(
			attribute.String("db.namespace", database),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	decision, err := s.evaluate(ctx, database, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Decision{}, err
	}
	if !decision.Accepted {
		s.logRejection(ctx, database, decision)
	}
	span.SetAttributes(attribute.Bool("gatekeeper.accepted", decision.Accepted))
	return decision, nil
}

// Execute evaluates sql and, only if the gatekeeper accepts it, delegates to the executor.
// Rejections are returned as a *domain.RejectionError alongside the Outcome.
func (s *QueryService) Execute(ctx context.Context, database, sql string) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.namespace", database),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	outcome := &Outcome{QueryID: uuid.NewString()}

	decision, err := s.evaluate(ctx, database, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}
	outcome.Decision = decision

	if !decision.Accepted {
		s.logRejection(ctx, database, decision)
		err := decision.Err()
		s.auditor.Record(ctx, s.auditEntry(ctx, outcome, database, 0, 0, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("gatekeeper.reason", string(decision.Reason)))
		s.inst.IncrementQueryErrors(ctx)
		return outcome, err
	}

	start := time.Now()
	result, err := s.executor.Execute(ctx, database, sql)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	rows := 0
	if result != nil {
		rows = len(result.Rows)
		outcome.Masked = s.masker.MaskRows(result.Columns, result.Rows)
	}
	s.auditor.Record(ctx, s.auditEntry(ctx, outcome, database, rows, durationMS, err))

	if err != nil {
		s.logger.ErrorContext(ctx, "query execution failed",
			slog.String("db.namespace", database),
			slog.String("db.statement.preview", decision.Preview),
			slog.String("error.type", "execution_error"),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return outcome, fmt.Errorf("executing query: %w", err)
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(
		attribute.Int("db.response.rows", rows),
		attribute.StringSlice("gatekeeper.tables", decision.Tables),
	)
	outcome.Result = result
	return outcome, nil
}

func (s *QueryService) evaluate(ctx context.Context, database, sql string) (domain.Decision, error) {
	if strings.TrimSpace(sql) == "" {
		return domain.Decision{}, domain.ErrEmptyQuery
	}
	schema, err := s.Schema(ctx, database)
	if err != nil {
		return domain.Decision{}, err
	}
	decision := s.gate.Evaluate(sql, schema)
	s.inst.RecordDecision(ctx, string(decision.Reason))
	return decision, nil
}

func (s *QueryService) logRejection(ctx context.Context, database string, d domain.Decision) {
	s.logger.WarnContext(ctx, "query rejected by gatekeeper",
		slog.String("gatekeeper.reason", string(d.Reason)),
		slog.String("db.namespace", database),
		slog.String("db.statement.preview", d.Preview),
	)
}

func (s *QueryService) auditEntry(ctx context.Context, o *Outcome, database string, rows int, durationMS int64, err error) port.AuditEntry {
	return port.AuditEntry{
		QueryID:      o.QueryID,
		Tool:         toolNameFromCtx(ctx),
		Database:     database,
		SQL:          o.Decision.Query,
		Preview:      o.Decision.Preview,
		Accepted:     o.Decision.Accepted,
		Reason:       string(o.Decision.Reason),
		Tables:       o.Decision.Tables,
		RowsReturned: rows,
		DurationMS:   durationMS,
		Err:          err,
	}
}

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrGenerationUnavailable is returned by Ask when no SQL generator is configured.
var ErrGenerationUnavailable = errors.New("sql generation is not configured")

const cacheKeyPrefix = "querygate:sql:"

// AskOutcome is the result of answering one natural-language question.
type AskOutcome struct {
	GeneratedSQL string `json:"generated_sql"`
	Attempts     int    `json:"attempts"`
	CacheHit     bool   `json:"cache_hit"`
	*Outcome
}

// AskOptions tune AskService. Zero values select defaults.
type AskOptions struct {
	MaxQuestionLength int
	MaxAttempts       int
	CacheTTL          time.Duration
}

// AskService turns a question into SQL and hands the SQL to QueryService.
// The generated SQL is untrusted: every attempt, cached or fresh, goes
// through the gatekeeper.
type AskService struct {
	queries   *QueryService
	generator port.SQLGenerator
	cache     port.GenerationCache
	logger    *slog.Logger
	opts      AskOptions
	tracer    trace.Tracer
}

func NewAskService(queries *QueryService, generator port.SQLGenerator, cache port.GenerationCache, logger *slog.Logger, opts AskOptions, tracer trace.Tracer) *AskService {
	if cache == nil {
		cache = port.NoopCache{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if opts.MaxQuestionLength <= 0 {
		opts.MaxQuestionLength = domain.DefaultMaxQuestionLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &AskService{
		queries:   queries,
		generator: generator,
		cache:     cache,
		logger:    logger,
		opts:      opts,
		tracer:    tracer,
	}
}

// Ask validates the question, generates SQL for it and executes the SQL.
// A database error triggers regeneration with the error fed back to the
// generator while attempts remain. Gatekeeper rejections are final.
func (s *AskService) Ask(ctx context.Context, database, question string) (*AskOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "AskService.Ask",
		trace.WithAttributes(attribute.String("db.namespace", database)),
	)
	defer span.End()

	out, err := s.ask(ctx, database, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if out != nil {
		span.SetAttributes(
			attribute.Int("ask.attempts", out.Attempts),
			attribute.Bool("ask.cache_hit", out.CacheHit),
		)
	}
	return out, err
}

func (s *AskService) ask(ctx context.Context, database, question string) (*AskOutcome, error) {
	if s.generator == nil {
		return nil, ErrGenerationUnavailable
	}
	if err := domain.ValidateQuestion(question, s.opts.MaxQuestionLength); err != nil {
		return nil, err
	}

	schema, err := s.queries.Schema(ctx, database)
	if err != nil {
		return nil, err
	}

	key := cacheKey(database, question, schema)
	req := port.GenerationRequest{
		Question:          question,
		Database:          database,
		Schema:            schema,
		TableDescriptions: s.queries.TableDescriptions(ctx, database),
	}

	out := &AskOutcome{}
	for {
		out.Attempts++

		sql, hit, err := s.generate(ctx, key, req, out.Attempts == 1)
		if err != nil {
			return out, err
		}
		out.GeneratedSQL = sql
		out.CacheHit = hit

		outcome, err := s.queries.Execute(ctx, database, sql)
		out.Outcome = outcome
		if err == nil {
			if !hit {
				s.store(ctx, key, sql)
			}
			return out, nil
		}
		if errors.Is(err, domain.ErrRejected) || errors.Is(err, domain.ErrEmptyQuery) || outcome == nil || ctx.Err() != nil {
			return out, err
		}

		if out.Attempts >= s.opts.MaxAttempts {
			return out, err
		}
		s.logger.WarnContext(ctx, "generated query failed, regenerating",
			slog.Int("ask.attempt", out.Attempts),
			slog.String("db.statement.preview", outcome.Decision.Preview),
			slog.String("error", err.Error()),
		)
		req.PreviousSQL = sql
		req.PreviousError = err.Error()
	}
}

// generate returns cached SQL on the first attempt when available.
func (s *AskService) generate(ctx context.Context, key string, req port.GenerationRequest, useCache bool) (string, bool, error) {
	if useCache {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "generation cache read failed", slog.String("error", err.Error()))
		}
		if ok && err == nil {
			return cached, true, nil
		}
	}

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("generating sql: %w", err)
	}
	return domain.CleanGeneratedSQL(raw), false, nil
}

func (s *AskService) store(ctx context.Context, key, sql string) {
	if err := s.cache.Set(ctx, key, sql, s.opts.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "generation cache write failed", slog.String("error", err.Error()))
	}
}

// cacheKey changes whenever the schema's tables or columns change, so cached
// SQL never outlives the schema it was generated for.
func cacheKey(database, question string, schema domain.SchemaSnapshot) string {
	h := sha256.New()
	h.Write([]byte(database))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))
	h.Write([]byte{'|'})
	for _, table := range schema.Tables() {
		h.Write([]byte(table))
		for _, col := range schema[table] {
			h.Write([]byte{0})
			h.Write([]byte(col.Name + " " + col.Type))
		}
		h.Write([]byte{'\n'})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

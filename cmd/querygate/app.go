package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/querygate/internal/adapter/cache"
	"github.com/guillermoBallester/querygate/internal/adapter/llm"
	"github.com/guillermoBallester/querygate/internal/adapter/llm/bedrock"
	"github.com/guillermoBallester/querygate/internal/adapter/llm/openaicompat"
	"github.com/guillermoBallester/querygate/internal/adapter/mysql"
	"github.com/guillermoBallester/querygate/internal/adapter/policy"
	"github.com/guillermoBallester/querygate/internal/adapter/postgres"
	"github.com/guillermoBallester/querygate/internal/adapter/sqlexec"
	"github.com/guillermoBallester/querygate/internal/audit"
	"github.com/guillermoBallester/querygate/internal/config"
	"github.com/guillermoBallester/querygate/internal/core/domain"
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/guillermoBallester/querygate/internal/core/service"
	"github.com/guillermoBallester/querygate/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation

	query *service.QueryService
	ask   *service.AskService

	closers []func(context.Context) error
}

// newApp connects to the database and builds the services. On error every
// resource opened so far is released.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		tracer: telemetry.NoopTracer(),
		inst:   telemetry.NoopInstruments(),
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, telemetry.Options{
			ServiceName: serviceName,
			Version:     version,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.closers = append(a.closers, provider.Shutdown)
		a.tracer = telemetry.Tracer()
		a.inst = telemetry.NewInstruments()
		logger.Info("telemetry enabled", slog.Float64("otel.sample_ratio", cfg.OTelSampleRatio))
	}

	schemas, executor, dialect, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.ExplainOnly {
		executor = sqlexec.NewExplainOnlyExecutor(executor)
	}

	pol := &policy.Policy{}
	if cfg.PolicyFile != "" {
		if pol, err = policy.LoadFromFile(cfg.PolicyFile); err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
		logger.Info("policy loaded", slog.String("file", cfg.PolicyFile))
	}
	schemas = policy.NewDescribingProvider(schemas, pol, cfg.DefaultDatabase)

	sensitive := pol.Sensitive(domain.DefaultSensitiveFieldSet()).With(cfg.SensitiveFields...)
	gate := domain.NewGatekeeper(sensitive)
	masker := domain.NewResultMasker(sensitive, policy.MaskSpec(pol.Context))
	logger.Info("gatekeeper configured", slog.Any("sensitive_fields", sensitive.Fields()))

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return fa.Close() })
		auditor = fa
		logger.Info("audit logging enabled", slog.String("file", cfg.AuditLog))
	}

	a.query = service.NewQueryService(gate, schemas, executor, auditor, logger, masker, a.tracer, a.inst)

	generator, err := a.newGenerator(ctx, dialect)
	if err != nil {
		return nil, err
	}
	if generator != nil {
		genCache, err := a.newCache(ctx)
		if err != nil {
			return nil, err
		}
		a.ask = service.NewAskService(a.query, generator, genCache, logger, service.AskOptions{
			MaxQuestionLength: cfg.MaxQuestionLength,
			MaxAttempts:       cfg.MaxAttempts,
			CacheTTL:          cfg.CacheTTL,
		}, a.tracer)
	}

	return a, nil
}

// connect opens the configured backend and returns its adapters and SQL dialect name.
func (a *app) connect(ctx context.Context) (port.SchemaProvider, port.QueryExecutor, string, error) {
	cfg := a.cfg
	switch cfg.Backend {
	case config.BackendMySQL:
		myCfg, err := mysql.ParseURL(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, "", err
		}
		db, err := mysql.Open(ctx, myCfg, mysql.PoolOptions{
			MaxConns:        int(cfg.PoolMaxConns),
			MinConns:        int(cfg.PoolMinConns),
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		if cfg.DefaultDatabase == "" {
			cfg.DefaultDatabase = myCfg.DBName
		}
		a.logger.Info("database connected",
			slog.String("db.system", "mysql"),
			slog.String("db.namespace", cfg.DefaultDatabase),
		)
		return mysql.NewSchemaProvider(db, cfg.DefaultDatabase),
			mysql.NewExecutor(db, cfg.DefaultDatabase, cfg.MaxRows, cfg.QueryTimeout),
			"MySQL", nil

	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { pool.Close(); return nil })
		if cfg.DefaultDatabase == "" {
			cfg.DefaultDatabase = postgres.DefaultSchema
		}
		a.logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("db.namespace", cfg.DefaultDatabase),
		)
		return postgres.NewSchemaProvider(pool, cfg.DefaultDatabase),
			postgres.NewExecutor(pool, cfg.MaxRows, cfg.QueryTimeout),
			"PostgreSQL", nil
	}
}

// newGenerator returns nil when SQL generation is disabled.
func (a *app) newGenerator(ctx context.Context, dialect string) (port.SQLGenerator, error) {
	cfg := a.cfg
	retry := llm.DefaultRetryPolicy
	retry.MaxRetries = cfg.LLMMaxRetries

	switch cfg.LLMProvider {
	case config.LLMProviderOpenAI:
		gen, err := openaicompat.NewGenerator(openaicompat.Config{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Dialect: dialect,
			Retry:   retry,
		})
		if err != nil {
			return nil, fmt.Errorf("creating openai generator: %w", err)
		}
		a.logger.Info("sql generation enabled", slog.String("llm.provider", cfg.LLMProvider))
		return gen, nil

	case config.LLMProviderBedrock:
		gen, err := bedrock.NewGenerator(ctx, cfg.AWSRegion, cfg.LLMModel, dialect, retry)
		if err != nil {
			return nil, fmt.Errorf("creating bedrock generator: %w", err)
		}
		a.logger.Info("sql generation enabled",
			slog.String("llm.provider", cfg.LLMProvider),
			slog.String("llm.model", cfg.LLMModel),
			slog.String("aws.region", cfg.AWSRegion),
		)
		return gen, nil

	default:
		return nil, nil
	}
}

// newCache returns nil when no redis URL is configured; AskService then skips caching.
func (a *app) newCache(ctx context.Context) (port.GenerationCache, error) {
	if a.cfg.RedisURL == "" {
		return nil, nil
	}
	c, err := cache.Connect(ctx, a.cfg.RedisURL, 3, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	a.logger.Info("generation cache enabled", slog.String("cache.ttl", a.cfg.CacheTTL.String()))
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}
}

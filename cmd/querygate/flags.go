package main

import (
	"io"
	"time"

	"github.com/guillermoBallester/querygate/internal/config"
	"github.com/spf13/pflag"
)

// flagValues holds the raw flag destinations. Only flags the user actually
// set become overrides, so environment variables keep working underneath.
type flagValues struct {
	fs *pflag.FlagSet

	databaseURL         string
	defaultDatabase     string
	logLevel            string
	maxRows             int
	queryTimeout        time.Duration
	policyFile          string
	sensitiveFields     string
	transport           string
	httpAddr            string
	httpBearerToken     string
	llmProvider         string
	llmModel            string
	redisURL            string
	otel                bool
	dryRun              bool
	explainOnly         bool
	auditLog            string
	poolMaxConns        int32
	poolMinConns        int32
	poolMaxConnLifetime time.Duration
}

func registerFlags(fs *pflag.FlagSet) *flagValues {
	v := &flagValues{fs: fs}

	fs.StringVar(&v.databaseURL, "database-url", "", "database URL, postgres:// or mysql:// (overrides DATABASE_URL)")
	fs.StringVar(&v.defaultDatabase, "default-database", "", "schema (Postgres) or database (MySQL) used when a call names none")
	fs.StringVar(&v.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	fs.IntVar(&v.maxRows, "max-rows", 0, "maximum rows returned per query (overrides MAX_ROWS)")
	fs.DurationVar(&v.queryTimeout, "query-timeout", 0, "query timeout, e.g. 10s (overrides QUERY_TIMEOUT)")
	fs.StringVar(&v.policyFile, "policy-file", "", "path to the policy YAML (overrides POLICY_FILE)")
	fs.StringVar(&v.sensitiveFields, "sensitive-fields", "", "comma-separated extra sensitive fields (overrides SENSITIVE_FIELDS)")
	fs.StringVar(&v.transport, "transport", "", "MCP transport: stdio or http (overrides TRANSPORT)")
	fs.StringVar(&v.httpAddr, "http-addr", "", "listen address for the http transport (overrides HTTP_ADDR)")
	fs.StringVar(&v.httpBearerToken, "http-bearer-token", "", "bearer token required by the http transport (overrides HTTP_BEARER_TOKEN)")
	fs.StringVar(&v.llmProvider, "llm-provider", "", "SQL generation backend: none, openai, bedrock (overrides LLM_PROVIDER)")
	fs.StringVar(&v.llmModel, "llm-model", "", "model name or Bedrock model ID (overrides LLM_MODEL)")
	fs.StringVar(&v.redisURL, "redis-url", "", "redis URL for the generated SQL cache (overrides REDIS_URL)")
	fs.BoolVar(&v.otel, "otel", false, "enable OpenTelemetry tracing and metrics")
	fs.BoolVar(&v.dryRun, "dry-run", false, "validate config and connectivity, then exit")
	fs.BoolVar(&v.explainOnly, "explain-only", false, "run every accepted query as EXPLAIN")
	fs.StringVar(&v.auditLog, "audit-log", "", "append gatekeeper decisions as NDJSON to this file")
	fs.Int32Var(&v.poolMaxConns, "pool-max-conns", 0, "maximum pool connections (overrides POOL_MAX_CONNS)")
	fs.Int32Var(&v.poolMinConns, "pool-min-conns", 0, "minimum pool connections (overrides POOL_MIN_CONNS)")
	fs.DurationVar(&v.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "maximum connection lifetime, e.g. 30m (overrides POOL_MAX_CONN_LIFETIME)")

	return v
}

// overrides converts the parsed flags into config.Overrides.
func (v *flagValues) overrides() config.Overrides {
	o := config.Overrides{
		OTelEnabled: v.otel,
		DryRun:      v.dryRun,
		ExplainOnly: v.explainOnly,
		AuditLog:    v.auditLog,
	}

	setString := func(name string, val string, dst **string) {
		if v.fs.Changed(name) {
			s := val
			*dst = &s
		}
	}
	setString("database-url", v.databaseURL, &o.DatabaseURL)
	setString("default-database", v.defaultDatabase, &o.DefaultDatabase)
	setString("log-level", v.logLevel, &o.LogLevel)
	setString("policy-file", v.policyFile, &o.PolicyFile)
	setString("sensitive-fields", v.sensitiveFields, &o.SensitiveFields)
	setString("transport", v.transport, &o.Transport)
	setString("http-addr", v.httpAddr, &o.HTTPAddr)
	setString("http-bearer-token", v.httpBearerToken, &o.HTTPBearerToken)
	setString("llm-provider", v.llmProvider, &o.LLMProvider)
	setString("llm-model", v.llmModel, &o.LLMModel)
	setString("redis-url", v.redisURL, &o.RedisURL)

	if v.fs.Changed("max-rows") {
		n := v.maxRows
		o.MaxRows = &n
	}
	if v.fs.Changed("query-timeout") {
		d := v.queryTimeout
		o.QueryTimeout = &d
	}
	if v.fs.Changed("pool-max-conns") {
		n := v.poolMaxConns
		o.PoolMaxConns = &n
	}
	if v.fs.Changed("pool-min-conns") {
		n := v.poolMinConns
		o.PoolMinConns = &n
	}
	if v.fs.Changed("pool-max-conn-lifetime") {
		d := v.poolMaxConnLifetime
		o.PoolMaxConnLifetime = &d
	}

	return o
}

// parseFlags parses args into config.Overrides without a cobra command.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("querygate", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	v := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return v.overrides(), nil
}

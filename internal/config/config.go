package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend identifies the database engine behind DATABASE_URL.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
)

// LLM providers accepted by LLM_PROVIDER.
const (
	LLMProviderNone    = "none"
	LLMProviderOpenAI  = "openai"
	LLMProviderBedrock = "bedrock"
)

type Config struct {
	// Database connection.
	DatabaseURL     string
	Backend         Backend // derived from the DATABASE_URL scheme
	DefaultDatabase string  // schema (Postgres) or database (MySQL) used when a call names none
	MaxRows         int
	QueryTimeout    time.Duration

	// Gatekeeper policy.
	PolicyFile      string   // optional path to policy YAML
	SensitiveFields []string // added to the built-in sensitive field list

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // required when transport=http

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// Observability.
	OTelEnabled     bool
	OTelSampleRatio float64

	// SQL generation.
	LLMProvider       string
	LLMBaseURL        string
	LLMModel          string
	LLMAPIKey         string
	AWSRegion         string
	LLMMaxRetries     int
	MaxQuestionLength int
	MaxAttempts       int

	// Generation cache.
	RedisURL string
	CacheTTL time.Duration

	DryRun      bool
	ExplainOnly bool
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL     *string
	DefaultDatabase *string
	LogLevel        *string
	MaxRows         *int
	QueryTimeout    *time.Duration
	PolicyFile      *string
	SensitiveFields *string
	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string
	LLMProvider     *string
	LLMModel        *string
	RedisURL        *string
	OTelEnabled     bool
	DryRun          bool
	ExplainOnly     bool
	AuditLog        string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MaxRows:             100,
		QueryTimeout:        10 * time.Second,
		Transport:           "stdio",
		HTTPAddr:            ":8080",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
		OTelSampleRatio:     1,
		LLMProvider:         LLMProviderNone,
		AWSRegion:           "us-east-1",
		LLMMaxRetries:       3,
		MaxQuestionLength:   500,
		MaxAttempts:         2,
		CacheTTL:            time.Hour,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	var err error

	if cfg.MaxRows, err = positiveInt("MAX_ROWS", cfg.MaxRows); err != nil {
		return err
	}
	if cfg.QueryTimeout, err = duration("QUERY_TIMEOUT", cfg.QueryTimeout); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.DefaultDatabase = os.Getenv("DEFAULT_DATABASE")
	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	cfg.SensitiveFields = splitList(os.Getenv("SENSITIVE_FIELDS"))
	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")

	if cfg.OTelEnabled, err = boolean("OTEL_ENABLED", cfg.OTelEnabled); err != nil {
		return err
	}
	if v := os.Getenv("OTEL_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("invalid OTEL_SAMPLE_RATIO value %q: must be in (0, 1]", v)
		}
		cfg.OTelSampleRatio = f
	}

	if err := loadPoolEnvVars(cfg); err != nil {
		return err
	}
	return loadGenerationEnvVars(cfg)
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	var err error
	cfg.PoolMaxConnLifetime, err = duration("POOL_MAX_CONN_LIFETIME", cfg.PoolMaxConnLifetime)
	return err
}

// loadGenerationEnvVars reads the LLM and cache settings used by the ask tool.
func loadGenerationEnvVars(cfg *Config) error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.LLMBaseURL = os.Getenv("LLM_BASE_URL")
	cfg.LLMModel = os.Getenv("LLM_MODEL")
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = os.Getenv("GITHUB_TOKEN")
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWSRegion = v
	}

	var err error
	if cfg.LLMMaxRetries, err = nonNegativeInt("LLM_MAX_RETRIES", cfg.LLMMaxRetries); err != nil {
		return err
	}
	if cfg.MaxQuestionLength, err = positiveInt("MAX_QUESTION_LENGTH", cfg.MaxQuestionLength); err != nil {
		return err
	}
	if cfg.MaxAttempts, err = positiveInt("MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.CacheTTL, err = duration("CACHE_TTL", cfg.CacheTTL)
	return err
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.DefaultDatabase != nil {
		cfg.DefaultDatabase = *o.DefaultDatabase
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.MaxRows != nil {
		if *o.MaxRows <= 0 {
			return fmt.Errorf("invalid --max-rows value: must be a positive integer")
		}
		cfg.MaxRows = *o.MaxRows
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.SensitiveFields != nil {
		cfg.SensitiveFields = splitList(*o.SensitiveFields)
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}
	if o.LLMProvider != nil {
		cfg.LLMProvider = strings.ToLower(strings.TrimSpace(*o.LLMProvider))
	}
	if o.LLMModel != nil {
		cfg.LLMModel = *o.LLMModel
	}
	if o.RedisURL != nil {
		cfg.RedisURL = *o.RedisURL
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.DryRun = o.DryRun
	cfg.ExplainOnly = o.ExplainOnly
	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}
	backend, err := DetectBackend(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	cfg.Backend = backend

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == "http" && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	switch cfg.LLMProvider {
	case LLMProviderNone, LLMProviderBedrock:
	case LLMProviderOpenAI:
		if cfg.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY (or GITHUB_TOKEN) is required when LLM_PROVIDER is %q", LLMProviderOpenAI)
		}
	default:
		return fmt.Errorf("invalid LLM_PROVIDER value %q: must be none, openai, or bedrock", cfg.LLMProvider)
	}
	if cfg.LLMProvider == LLMProviderBedrock && cfg.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL is required when LLM_PROVIDER is %q", LLMProviderBedrock)
	}

	return nil
}

// DetectBackend picks the database engine from the URL scheme.
func DetectBackend(databaseURL string) (Backend, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mysql":
		return BackendMySQL, nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_URL scheme %q: must be postgres, postgresql, or mysql", u.Scheme)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}

func positiveInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be a positive integer", name, v)
	}
	return n, nil
}

// nonNegativeInt is positiveInt that also accepts zero.
func nonNegativeInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be zero or a positive integer", name, v)
	}
	return n, nil
}

func duration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	return d, nil
}

func boolean(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

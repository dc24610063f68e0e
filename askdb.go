package askdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/askdb/askdb-mcp/internal/errhint"
	"github.com/askdb/askdb-mcp/internal/readonly"
	"github.com/askdb/askdb-mcp/internal/redact"
	"github.com/askdb/askdb-mcp/internal/timeout"
)

// Assistant is the core engine that provides the Ask, Classify, and Schema
// tools. All exported methods are safe for concurrent use from multiple
// goroutines.
type Assistant struct {
	config     Config
	pool       *pgxpool.Pool
	semaphore  chan struct{}
	policy     *readonly.Policy
	redactor   *redact.Redactor
	errHints   *errhint.Matcher
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// New creates a new Assistant.
// connString is the PostgreSQL connection string (must include credentials) —
// Config.Connection fields are ignored in library mode (the CLI is
// responsible for building connString from Config.Connection + prompted
// credentials).
// Panics on invalid config. Returns error only for runtime failures
// (e.g., pool creation, invalid rule regexes).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger) (*Assistant, error) {
	// --- Config validation (panics on invalid config) ---

	if connString == "" {
		panic("askdb: connString must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("askdb: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("askdb: query.default_timeout_seconds must be > 0")
	}
	if config.Query.SchemaTimeoutSeconds <= 0 {
		panic("askdb: query.schema_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("askdb: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("askdb: query.max_result_length must be > 0")
	}

	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("askdb: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Configure pgxpool ---

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.Pool.MaxConns)
	poolConfig.MinConns = int32(config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	// Parse pool duration strings
	if config.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnLifetime)
		if err != nil {
			panic(fmt.Sprintf("askdb: invalid pool.max_conn_lifetime %q: %v", config.Pool.MaxConnLifetime, err))
		}
		poolConfig.MaxConnLifetime = d
	}
	if config.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnIdleTime)
		if err != nil {
			panic(fmt.Sprintf("askdb: invalid pool.max_conn_idle_time %q: %v", config.Pool.MaxConnIdleTime, err))
		}
		poolConfig.MaxConnIdleTime = d
	}
	if config.Pool.HealthCheckPeriod != "" {
		d, err := time.ParseDuration(config.Pool.HealthCheckPeriod)
		if err != nil {
			panic(fmt.Sprintf("askdb: invalid pool.health_check_period %q: %v", config.Pool.HealthCheckPeriod, err))
		}
		poolConfig.HealthCheckPeriod = d
	}

	// Session-level settings. The classifier is the admission gate; the
	// read-only session default is the belt-and-suspenders layer behind it.
	if config.ReadOnly || config.Timezone != "" {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if config.ReadOnly {
				if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
					return fmt.Errorf("failed to SET default_transaction_read_only: %w", err)
				}
			}
			if config.Timezone != "" {
				escaped := strings.ReplaceAll(config.Timezone, "'", "''")
				if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
					return fmt.Errorf("failed to SET timezone: %w", err)
				}
			}
			return nil
		}
	}

	// --- Create pool ---

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// --- Initialize internal components ---

	redactor, err := redact.NewRedactor(mapRedactionRules(config.Redaction))
	if err != nil {
		pool.Close()
		return nil, err
	}
	matcher, err := errhint.NewMatcher(mapErrorHintRules(config.ErrorHints))
	if err != nil {
		pool.Close()
		return nil, err
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Assistant{
		config:     config,
		pool:       pool,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		policy:     readonly.NewPolicy(),
		redactor:   redactor,
		errHints:   matcher,
		timeoutMgr: tmgr,
		logger:     logger,
	}, nil
}

// Ping verifies database connectivity.
func (a *Assistant) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close closes the connection pool. Accepts context for API forward-compatibility,
// but does not currently use it — pgxpool.Pool.Close() does not support context-based shutdown.
func (a *Assistant) Close(ctx context.Context) {
	a.pool.Close()
}

// Classify reports whether sql would be admitted by the read-only gate,
// without touching the database. Useful for callers that want to probe the
// policy before submitting a query.
func (a *Assistant) Classify(sql string) *ClassifyOutput {
	sql = strings.TrimSpace(sql)
	return &ClassifyOutput{
		SQL:        sql,
		Allowed:    a.policy.Classify(sql),
		Statements: a.policy.Clean(sql),
	}
}

// mapRedactionRules converts askdb RedactionRules to internal redact.Rules.
func mapRedactionRules(rules []RedactionRule) []redact.Rule {
	result := make([]redact.Rule, len(rules))
	for i, r := range rules {
		result[i] = redact.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorHintRules converts askdb ErrorHintRules to internal errhint.Rules.
func mapErrorHintRules(rules []ErrorHintRule) []errhint.Rule {
	result := make([]errhint.Rule, len(rules))
	for i, r := range rules {
		result[i] = errhint.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}

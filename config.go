package askdb

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool       PoolConfig      `json:"pool"`
	Query      QueryConfig     `json:"query"`
	Schema     SchemaConfig    `json:"schema"`
	ErrorHints []ErrorHintRule `json:"error_hints"`
	Redaction  []RedactionRule `json:"redaction"`
	ReadOnly   bool            `json:"read_only"`
	Timezone   string          `json:"timezone"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
type ConnectionConfig struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBName  string `json:"dbname"`
	SSLMode string `json:"sslmode"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns"`
	MinConns          int    `json:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds int           `json:"default_timeout_seconds"`
	SchemaTimeoutSeconds  int           `json:"schema_timeout_seconds"`
	MaxSQLLength          int           `json:"max_sql_length"`
	MaxResultLength       int           `json:"max_result_length"`
	TimeoutRules          []TimeoutRule `json:"timeout_rules"`
}

// SchemaConfig controls the schema summary.
type SchemaConfig struct {
	// ExcludeTablePrefixes drops framework-internal tables from the
	// summary (e.g. "django_").
	ExcludeTablePrefixes []string `json:"exclude_table_prefixes"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorHintRule maps an error message pattern to a guidance message.
type ErrorHintRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// RedactionRule defines a regex-based field redaction rule.
type RedactionRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

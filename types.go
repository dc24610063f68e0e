package askdb

// QueryInput is the input for the ask tool.
type QueryInput struct {
	SQL string `json:"sql"`
}

// AskOutput is the output of the ask tool. The submitted SQL is always
// echoed back so the caller can correlate request and response. On success
// Rows holds the full result set in engine order; on any failure —
// policy rejection or execution fault — Error holds the message and
// Columns/Rows are empty. Errors are data, never Go errors: callers only
// check Error.
type AskOutput struct {
	SQL     string                   `json:"sql"`
	Columns []string                 `json:"columns,omitempty"`
	Rows    []map[string]interface{} `json:"rows,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// ClassifyOutput is the output of the classify tool: the verdict for the
// whole request plus the cleaned statements the verdict was computed over.
type ClassifyOutput struct {
	SQL        string   `json:"sql"`
	Allowed    bool     `json:"allowed"`
	Statements []string `json:"statements"`
}

// SchemaInput is the input for the schema tool.
type SchemaInput struct{}

// ColumnSummary describes one column in the schema summary.
type ColumnSummary struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// TableSummary describes one table in the schema summary.
type TableSummary struct {
	Schema  string          `json:"schema"`
	Name    string          `json:"name"`
	Type    string          `json:"type"` // "table", "view", "materialized_view", "foreign_table", "partitioned_table"
	Columns []ColumnSummary `json:"columns"`
}

// SchemaOutput is the output of the schema tool.
type SchemaOutput struct {
	Tables []TableSummary `json:"tables"`
	Error  string         `json:"error,omitempty"`
}

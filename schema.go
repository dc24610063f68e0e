package askdb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const schemaTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname;
`

const schemaColumnsSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS table,
    a.attname AS name,
    pg_catalog.format_type(a.atttypid, a.atttypmod) AS type,
    NOT a.attnotnull AS nullable,
    COALESCE(pg_catalog.pg_get_expr(d.adbin, d.adrelid), '') AS default_val
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND a.attnum > 0
  AND NOT a.attisdropped
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname, a.attnum;
`

// Schema returns every table, view, materialized view, and foreign table
// visible to the current user together with its columns, in catalog order.
// Tables whose names start with a configured excluded prefix are skipped.
// Results are computed fresh on every call; nothing is cached.
func (a *Assistant) Schema(ctx context.Context, input SchemaInput) (*SchemaOutput, error) {
	startTime := time.Now()

	// 1. Acquire semaphore
	select {
	case a.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("Schema: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(a.semaphore), ctx.Err())
	}
	defer func() { <-a.semaphore }()

	// 2. Apply configurable timeout
	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(a.config.Query.SchemaTimeoutSeconds)*time.Second)
	defer cancel()

	// 3. Acquire connection and execute
	conn, err := a.pool.Acquire(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(queryCtx, schemaTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("Schema tables query failed: %w", err)
	}

	tables := []TableSummary{}
	index := make(map[string]int)
	for rows.Next() {
		var entry TableSummary
		if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("Schema tables scan failed: %w", err)
		}
		if a.excludedTable(entry.Name) {
			continue
		}
		entry.Columns = []ColumnSummary{}
		index[entry.Schema+"."+entry.Name] = len(tables)
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Schema tables rows error: %w", err)
	}

	colRows, err := conn.Query(queryCtx, schemaColumnsSQL)
	if err != nil {
		return nil, fmt.Errorf("Schema columns query failed: %w", err)
	}
	for colRows.Next() {
		var schema, table string
		var col ColumnSummary
		if err := colRows.Scan(&schema, &table, &col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
			colRows.Close()
			return nil, fmt.Errorf("Schema columns scan failed: %w", err)
		}
		if i, ok := index[schema+"."+table]; ok {
			tables[i].Columns = append(tables[i].Columns, col)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("Schema columns rows error: %w", err)
	}

	a.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("Schema executed")

	return &SchemaOutput{Tables: tables}, nil
}

// excludedTable reports whether the table name matches a configured
// excluded prefix.
func (a *Assistant) excludedTable(name string) bool {
	for _, prefix := range a.config.Schema.ExcludeTablePrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

package askdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// rejectedMessage is the fixed policy rejection template. It enumerates the
// permitted statement kinds so the calling agent can rephrase.
const rejectedMessage = "Only read-only queries are allowed. Permitted operations: SELECT, WITH...SELECT, EXPLAIN, DESCRIBE, SHOW"

// Ask executes the full query pipeline and returns only AskOutput.
// All failures — policy rejections, Postgres errors, timeouts, recovered
// internal defects — are converted to output.Error, with any matching
// error_hints messages appended. Callers only need to check output.Error,
// never a Go error.
//
// A query rejected by the read-only policy never touches the database.
func (a *Assistant) Ask(ctx context.Context, input QueryInput) (output *AskOutput) {
	startTime := time.Now()
	sql := strings.TrimSpace(input.SQL)

	// An internal defect (e.g. a conversion bug) must surface as data like
	// any other fault, never unwind past this boundary.
	defer func() {
		if r := recover(); r != nil {
			output = a.failure(sql, fmt.Sprintf("SQL execution failed: internal error: %v", r))
		}
	}()

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case a.semaphore <- struct{}{}:
	case <-ctx.Done():
		return a.failure(sql, fmt.Sprintf("SQL execution failed: all %d connection slots are in use, context cancelled while waiting: %v", cap(a.semaphore), ctx.Err()))
	}
	defer func() { <-a.semaphore }()

	// 2. Check SQL length before any processing
	if len(sql) > a.config.Query.MaxSQLLength {
		return a.failure(sql, fmt.Sprintf("SQL execution failed: query too long: %d bytes exceeds maximum of %d bytes", len(sql), a.config.Query.MaxSQLLength))
	}

	// 3. Admission gate
	if !a.policy.Classify(sql) {
		a.logger.Warn().
			Str("sql", normalizeForLog(sql, 200)).
			Msg("query rejected by read-only policy")
		return a.failure(sql, rejectedMessage)
	}

	// 4. Determine timeout
	timeoutDur, timeoutRule := a.timeoutMgr.GetTimeoutWithPattern(sql)
	queryCtx, cancel := context.WithTimeout(ctx, timeoutDur)
	defer cancel()

	// 5. Acquire connection and execute. The transaction is ALWAYS rolled
	// back: every admitted statement is read-only, so there is nothing to
	// commit, and the rollback guarantees it even when the classifier is
	// wrong about a statement.
	conn, err := a.pool.Acquire(queryCtx)
	if err != nil {
		return a.executionFault(sql, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(queryCtx)
	if err != nil {
		return a.executionFault(sql, err)
	}
	defer tx.Rollback(ctx) // parent ctx — if the query timed out, queryCtx is cancelled and rollback would fail

	rows, err := tx.Query(queryCtx, sql)
	if err != nil {
		return a.executionFault(sql, err)
	}

	// 6. Collect results
	result, err := collectRows(rows)
	if err != nil {
		return a.executionFault(sql, err)
	}
	result.SQL = sql

	// 7. Apply redaction (per-field, recursive into JSONB/arrays)
	redacted := a.redactor.HasRules()
	result.Rows = a.redactor.RedactRows(result.Rows)

	// 8. Apply max result length truncation
	a.truncateIfNeeded(result)

	logEvent := a.logger.Info().
		Str("sql", normalizeForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(result.Rows))
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if redacted {
		logEvent = logEvent.Bool("redacted", true)
	}
	logEvent.Msg("query executed")

	return result
}

// executionFault wraps an engine failure in the execution-fault template.
func (a *Assistant) executionFault(sql string, err error) *AskOutput {
	return a.failure(sql, fmt.Sprintf("SQL execution failed: %s", err.Error()))
}

// failure builds an AskOutput carrying errMsg and the original SQL. The
// message is evaluated against error_hints — matching hint messages are
// appended.
func (a *Assistant) failure(sql, errMsg string) *AskOutput {
	hint := a.errHints.Match(errMsg)
	patterns := a.errHints.MatchedPatterns(errMsg)

	logEvent := a.logger.Error().Str("error", errMsg)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_hints", patterns)
	}
	logEvent.Msg("query failed")

	if hint != "" {
		errMsg = errMsg + "\n\n" + hint
	}
	return &AskOutput{SQL: sql, Error: errMsg}
}

// collectRows reads all rows from pgx.Rows and returns an AskOutput with
// column order and row order exactly as returned by the engine.
func collectRows(rows pgx.Rows) (*AskOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &AskOutput{Columns: columns, Rows: resultRows}, nil
}

// convertValue converts a pgx-returned value to a JSON-friendly Go type.
// Unknown types fall back to their text rendering rather than failing.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case netip.Prefix:
		return val.String()
	case net.HardwareAddr:
		return val.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		us := val.Microseconds
		hours := us / 3_600_000_000
		us -= hours * 3_600_000_000
		minutes := us / 60_000_000
		us -= minutes * 60_000_000
		seconds := us / 1_000_000
		us -= seconds * 1_000_000
		if us > 0 {
			return fmt.Sprintf("%02d:%02d:%02d.%06d", hours, minutes, seconds, us)
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		parts := []string{}
		if val.Months != 0 {
			years := val.Months / 12
			months := val.Months % 12
			if years != 0 {
				parts = append(parts, fmt.Sprintf("%d year(s)", years))
			}
			if months != 0 {
				parts = append(parts, fmt.Sprintf("%d mon(s)", months))
			}
		}
		if val.Days != 0 {
			parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
		}
		if val.Microseconds != 0 {
			dur := time.Duration(val.Microseconds) * time.Microsecond
			parts = append(parts, dur.String())
		}
		if len(parts) == 0 {
			return "0"
		}
		return strings.Join(parts, " ")
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		if val.InfinityModifier == pgtype.Infinity {
			return "Infinity"
		}
		if val.InfinityModifier == pgtype.NegativeInfinity {
			return "-Infinity"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		// bytea, xml — base64 encode
		return base64.StdEncoding.EncodeToString(val)
	case string:
		return val
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, v := range val {
			result[k] = convertValue(v)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, v := range val {
			result[i] = convertValue(v)
		}
		return result
	default:
		if _, err := json.Marshal(val); err == nil {
			return val
		}
		return fmt.Sprint(val)
	}
}

// convertFloat maps NaN and infinities to strings — JSON has no encoding for them.
func convertFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return f
}

// truncateIfNeeded truncates result rows if they exceed MaxResultLength
// (in characters). Truncation is always signaled in Error, never silent.
func (a *Assistant) truncateIfNeeded(output *AskOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= a.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:a.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// normalizeForLog strips literal values from SQL before it is logged, so
// query parameters (which may be sensitive) do not leak into log output.
// Never consulted for admission — falls back to the raw text when the SQL
// does not parse.
func normalizeForLog(sql string, maxLen int) string {
	if normalized, err := pg_query.Normalize(sql); err == nil {
		sql = normalized
	}
	return truncateForLog(sql, maxLen)
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}

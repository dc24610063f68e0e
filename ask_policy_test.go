package askdb_test

import (
	"context"
	"strings"
	"testing"

	askdb "github.com/askdb/askdb-mcp"
	"github.com/rs/zerolog"
)

// newUnreachableAssistant builds an Assistant whose pool points at a closed
// port. pgxpool connects lazily, so this succeeds — and any code path that
// touches the database fails loudly, which is exactly what the policy
// rejection tests rely on.
func newUnreachableAssistant(t *testing.T) *askdb.Assistant {
	t.Helper()
	ctx := context.Background()
	a, err := askdb.New(ctx, "host=127.0.0.1 port=1 dbname=none user=none", askdb.Config{
		Pool: askdb.PoolConfig{MaxConns: 2},
		Query: askdb.QueryConfig{
			DefaultTimeoutSeconds: 5,
			SchemaTimeoutSeconds:  5,
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create assistant: %v", err)
	}
	t.Cleanup(func() { a.Close(ctx) })
	return a
}

func TestAskRejectsWriteWithoutTouchingDatabase(t *testing.T) {
	t.Parallel()
	a := newUnreachableAssistant(t)

	cases := []string{
		"DROP TABLE users",
		"INSERT INTO users VALUES (1)",
		"SELECT 1; DELETE FROM users",
		"update users set name = 'x'",
		"SET search_path TO public",
	}
	for _, sql := range cases {
		output := a.Ask(context.Background(), askdb.QueryInput{SQL: sql})
		if output.Error == "" {
			t.Fatalf("Ask(%q): expected policy rejection, got success", sql)
		}
		// A connection attempt against the closed port would produce a
		// connect error, not the policy message. Seeing the policy message
		// proves the database was never touched.
		if !strings.Contains(output.Error, "Only read-only queries are allowed") {
			t.Fatalf("Ask(%q): expected policy message, got %q", sql, output.Error)
		}
		if !strings.Contains(output.Error, "SELECT, WITH...SELECT, EXPLAIN, DESCRIBE, SHOW") {
			t.Fatalf("Ask(%q): policy message must enumerate permitted operations, got %q", sql, output.Error)
		}
		if output.SQL != strings.TrimSpace(sql) {
			t.Fatalf("Ask(%q): expected trimmed SQL echoed back, got %q", sql, output.SQL)
		}
		if output.Rows != nil {
			t.Fatalf("Ask(%q): expected no rows on rejection", sql)
		}
	}
}

func TestAskExecutionFaultIsData(t *testing.T) {
	t.Parallel()
	a := newUnreachableAssistant(t)

	// Admitted query, unreachable database: the connect failure must come
	// back as data in Error with the SQL echoed, never as a Go error or panic.
	output := a.Ask(context.Background(), askdb.QueryInput{SQL: " SELECT 1 AS x "})
	if output.Error == "" {
		t.Fatal("expected execution fault against unreachable database")
	}
	if !strings.Contains(output.Error, "SQL execution failed") {
		t.Fatalf("expected execution fault template, got %q", output.Error)
	}
	if output.SQL != "SELECT 1 AS x" {
		t.Fatalf("expected trimmed SQL echoed back, got %q", output.SQL)
	}
}

func TestAskRejectsOverlongSQL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, err := askdb.New(ctx, "host=127.0.0.1 port=1 dbname=none user=none", askdb.Config{
		Pool: askdb.PoolConfig{MaxConns: 2},
		Query: askdb.QueryConfig{
			DefaultTimeoutSeconds: 5,
			SchemaTimeoutSeconds:  5,
			MaxSQLLength:          10,
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create assistant: %v", err)
	}
	t.Cleanup(func() { a.Close(ctx) })

	output := a.Ask(ctx, askdb.QueryInput{SQL: "SELECT 1 FROM somewhere"})
	if !strings.Contains(output.Error, "query too long") {
		t.Fatalf("expected length rejection, got %q", output.Error)
	}
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		config askdb.Config
	}{
		{"zero max conns", askdb.Config{Query: askdb.QueryConfig{DefaultTimeoutSeconds: 5, SchemaTimeoutSeconds: 5}}},
		{"zero default timeout", askdb.Config{Pool: askdb.PoolConfig{MaxConns: 2}, Query: askdb.QueryConfig{SchemaTimeoutSeconds: 5}}},
		{"zero schema timeout", askdb.Config{Pool: askdb.PoolConfig{MaxConns: 2}, Query: askdb.QueryConfig{DefaultTimeoutSeconds: 5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic on invalid config")
				}
			}()
			_, _ = askdb.New(context.Background(), "host=127.0.0.1 port=1 dbname=none user=none", tc.config, zerolog.Nop())
		})
	}
}

func TestNewRejectsInvalidRuleRegex(t *testing.T) {
	t.Parallel()
	_, err := askdb.New(context.Background(), "host=127.0.0.1 port=1 dbname=none user=none", askdb.Config{
		Pool: askdb.PoolConfig{MaxConns: 2},
		Query: askdb.QueryConfig{
			DefaultTimeoutSeconds: 5,
			SchemaTimeoutSeconds:  5,
		},
		ErrorHints: []askdb.ErrorHintRule{{Pattern: "[invalid", Message: "x"}},
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid error_hints regex")
	}
}

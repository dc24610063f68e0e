package askdb_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	askdb "github.com/askdb/askdb-mcp"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() askdb.Config {
	return askdb.Config{
		Pool: askdb.PoolConfig{MaxConns: 5},
		Query: askdb.QueryConfig{
			DefaultTimeoutSeconds: 30,
			SchemaTimeoutSeconds:  10,
			MaxSQLLength:          100000,
			MaxResultLength:       100000,
		},
	}
}

// setupSchema runs DDL/DML directly over a throwaway connection. The Ask tool
// refuses writes, so fixtures have to go in through the side door.
func setupSchema(t *testing.T, connStr string, statements ...string) {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("setup connect failed: %v", err)
	}
	defer conn.Close(ctx)
	for _, sql := range statements {
		if _, err := conn.Exec(ctx, sql); err != nil {
			t.Fatalf("setup failed for %q: %v", sql, err)
		}
	}
}

func newTestAssistant(t *testing.T, config askdb.Config) (*askdb.Assistant, string) {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()
	a, err := askdb.New(ctx, connStr, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create Assistant: %v", err)
	}
	t.Cleanup(func() { a.Close(ctx) })
	return a, connStr
}

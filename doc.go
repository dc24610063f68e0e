// Package askdb provides read-only PostgreSQL access for AI agents through
// the Model Context Protocol (MCP).
//
// It exposes three tools — Ask, Classify, and Schema — built around a
// keyword-surface admission gate: caller-supplied SQL is stripped of
// comments, split into statements, and admitted only when every statement
// is read-only (SELECT, WITH...SELECT, EXPLAIN, DESCRIBE, SHOW). Rejected
// queries never touch the database. Admitted queries run inside a
// transaction that is always rolled back, against a pool that can be pinned
// to read-only sessions, so the text gate is never the only line of
// defense.
//
// Every failure — policy rejection, engine error, timeout — is returned as
// data in the output's Error field together with the submitted SQL;
// nothing crosses the Ask boundary as a Go error or panic.
//
// # Library Usage
//
//	a, err := askdb.New(ctx, connString, askdb.Config{
//		Pool:     askdb.PoolConfig{MaxConns: 10},
//		ReadOnly: true,
//		Query: askdb.QueryConfig{
//			DefaultTimeoutSeconds: 30,
//			SchemaTimeoutSeconds:  10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer a.Close(ctx)
//
//	// Use directly
//	output := a.Ask(ctx, askdb.QueryInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	askdb.RegisterMCPTools(mcpServer, a)
//
// The classifier is deliberately coarse — see package
// internal/readonly for its documented limits.
package askdb

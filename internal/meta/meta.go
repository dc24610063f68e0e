// Package meta holds build metadata shared by the CLI.
package meta

// Version is the askdb release version, overridable at build time with
// -ldflags "-X github.com/askdb/askdb-mcp/internal/meta.Version=...".
var Version = "dev"

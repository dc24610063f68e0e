// Package readonly decides, from raw SQL text alone, whether a request is
// safe to run against a database that must not be mutated.
//
// The check is a deliberate keyword-surface classifier, not a parser: it
// strips comments, splits on semicolons, and matches each statement against
// compiled keyword patterns. A forbidden keyword inside a string literal
// (SELECT 'DROP TABLE users') causes a false rejection, and a keyword
// hidden behind dialect-specific spelling can slip through.
// The classifier is a defense-in-depth gate in front of least-privilege
// database credentials, not a substitute for them.
//
// Known limit: a WITH statement is admitted when the word SELECT appears
// after WITH on the same line; the final clause is not verified to be a
// SELECT.
package readonly

import (
	"regexp"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Policy holds the compiled keyword tables. Build it once with NewPolicy
// and share it by reference; it is immutable and safe for concurrent use.
type Policy struct {
	forbidden []*regexp.Regexp
	allowed   []*regexp.Regexp
}

// NewPolicy compiles the classifier's keyword tables.
func NewPolicy() *Policy {
	return &Policy{
		// A forbidden keyword anywhere in a statement rejects the whole
		// request, even when the statement starts with SELECT.
		forbidden: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|REPLACE)\b`),
			regexp.MustCompile(`(?i)\b(GRANT|REVOKE|SET|RESET)\b`),
			regexp.MustCompile(`(?i)\bCALL\b`),
			regexp.MustCompile(`(?i)\bEXECUTE\b`),
			regexp.MustCompile(`(?i)\bPRAGMA\b.*=\s*ON$`),
		},
		// Statements must start with one of these to be admitted.
		allowed: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^SELECT\b`),
			regexp.MustCompile(`(?i)^WITH\b.*SELECT\b`),
			regexp.MustCompile(`(?i)^EXPLAIN\b`),
			regexp.MustCompile(`(?i)^DESCRIBE\b`),
			regexp.MustCompile(`(?i)^SHOW\b`),
			regexp.MustCompile(`(?i)^PRAGMA\b.*=\s*OFF$`),
		},
	}
}

// Clean strips line and block comments from sql, splits the remainder on
// semicolons, and returns the trimmed non-empty statements in order.
func (p *Policy) Clean(sql string) []string {
	cleaned := lineComment.ReplaceAllString(sql, "")
	cleaned = blockComment.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	var statements []string
	for _, stmt := range strings.Split(cleaned, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// Classify reports whether every statement in sql is read-only. The request
// is all-or-nothing: one rejected statement rejects the whole request, and
// evaluation stops at the first rejection. An input that is empty after
// comment stripping is vacuously allowed.
func (p *Policy) Classify(sql string) bool {
	for _, stmt := range p.Clean(sql) {
		if !p.classifyStatement(stmt) {
			return false
		}
	}
	return true
}

func (p *Policy) classifyStatement(stmt string) bool {
	for _, pattern := range p.forbidden {
		if pattern.MatchString(stmt) {
			return false
		}
	}
	for _, pattern := range p.allowed {
		if pattern.MatchString(stmt) {
			return true
		}
	}
	return false
}

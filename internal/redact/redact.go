// Package redact rewrites sensitive substrings in query results before
// they are returned to the calling agent.
package redact

import (
	"fmt"
	"regexp"
)

// Rule is the redactor's own rule type.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor applies regex-based replacement to result row field values.
type Redactor struct {
	rules []compiledRule
}

// NewRedactor creates a new Redactor. Returns an error on invalid regex patterns.
func NewRedactor(rules []Rule) (*Redactor, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Redactor{rules: compiled}, nil
}

// HasRules returns true if the redactor has any rules configured.
func (r *Redactor) HasRules() bool {
	return len(r.rules) > 0
}

// RedactRows applies every rule to each string field value in the rows.
// JSONB objects and arrays surface as map[string]interface{} and
// []interface{}; those are walked recursively down to their primitives.
func (r *Redactor) RedactRows(rows []map[string]interface{}) []map[string]interface{} {
	for _, row := range rows {
		for k, v := range row {
			row[k] = r.redactValue(v)
		}
	}
	return rows
}

func (r *Redactor) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		result := val
		for _, rule := range r.rules {
			result = rule.pattern.ReplaceAllString(result, rule.replacement)
		}
		return result
	case map[string]interface{}:
		for k, v := range val {
			val[k] = r.redactValue(v)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
		return val
	default:
		// Numeric, bool, nil — nothing to rewrite.
		return v
	}
}

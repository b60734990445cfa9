package rules

import (
	"fmt"
	"strings"
)

// ParseError indicates malformed YAML. It is always distinguishable from a
// schema error: the document could not be read at all.
type ParseError struct {
	Source string // file path or logical name, may be empty for in-memory content
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("failed to parse rule set %s: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("failed to parse rule set: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Violation is one structural problem found during schema validation
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaError reports every structural violation found in a well-formed
// document, collected in one pass so callers see all problems at once.
type SchemaError struct {
	Source     string
	Violations []Violation
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "rule set %s failed schema validation (%d violations):", e.Source, len(e.Violations))
	} else {
		fmt.Fprintf(&b, "rule set failed schema validation (%d violations):", len(e.Violations))
	}
	for _, v := range e.Violations {
		fmt.Fprintf(&b, "\n  %s: %s", v.Path, v.Message)
	}
	return b.String()
}

// NotFoundError indicates a missing rule-set file or directory
type NotFoundError struct {
	Path  string
	Cause error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule set path not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

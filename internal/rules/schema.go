package rules

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed ruleset_schema.json
var ruleSetSchemaJSON string

// validateDocument checks a parsed YAML document against the embedded rule
// set schema: required fields, known operators, severity enum, numeric
// bounds. Violations are collected, never thrown one at a time.
func validateDocument(doc interface{}) []Violation {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(ruleSetSchemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return []Violation{{Path: "(document)", Message: err.Error()}}
	}

	var violations []Violation
	for _, e := range result.Errors() {
		violations = append(violations, Violation{Path: e.Field(), Message: e.Description()})
	}
	return violations
}

// validateSemantics checks what the structural schema cannot express:
// operator/payload shape matching, duplicate rule ids, range ordering and
// compilable regex patterns.
func validateSemantics(rs *RuleSet) []Violation {
	var violations []Violation

	keys := make([]string, 0, len(rs.Categories))
	for key := range rs.Categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seenIDs := make(map[string]string) // rule id -> category key
	for _, key := range keys {
		cat := rs.Categories[key]
		for i, rule := range cat.Rules {
			path := fmt.Sprintf("categories.%s.rules.%d", key, i)

			if prev, dup := seenIDs[rule.ID]; dup {
				violations = append(violations, Violation{
					Path:    path + ".id",
					Message: fmt.Sprintf("duplicate rule id %q (already declared in category %q)", rule.ID, prev),
				})
			} else {
				seenIDs[rule.ID] = key
			}

			violations = append(violations, validateConditionPayload(path+".condition", rule.Condition)...)
		}
	}

	for i, g := range rs.GradeMapping {
		if g.Min > g.Max {
			violations = append(violations, Violation{
				Path:    fmt.Sprintf("grade_mapping.%d", i),
				Message: fmt.Sprintf("min %.0f exceeds max %.0f", g.Min, g.Max),
			})
		}
	}

	return violations
}

// validateConditionPayload enforces the tagged-union invariant: a
// condition's payload shape must match its operator.
func validateConditionPayload(path string, cond Condition) []Violation {
	var violations []Violation
	add := func(msg string) {
		violations = append(violations, Violation{Path: path, Message: msg})
	}

	switch cond.Operator {
	case OpEq, OpContains, OpNotContains, OpMinCount, OpMaxCount:
		if cond.Value == nil {
			add(fmt.Sprintf("operator %q requires a value", cond.Operator))
		}

	case OpLte, OpGte:
		if _, ok := toFloat64(cond.Value); !ok {
			add(fmt.Sprintf("operator %q requires a numeric value", cond.Operator))
		}

	case OpIncludes:
		if cond.Value == nil && len(cond.Values) == 0 {
			add(`operator "includes" requires a value or a values list`)
		}

	case OpAny, OpAll:
		if len(cond.Values) == 0 {
			add(fmt.Sprintf("operator %q requires a non-empty values list", cond.Operator))
		}

	case OpBetween, OpNumericRange, OpLengthRange, OpRequiredAndLength:
		if cond.Min == nil && cond.Max == nil {
			add(fmt.Sprintf("operator %q requires min and/or max", cond.Operator))
		} else if cond.Min != nil && cond.Max != nil && *cond.Min > *cond.Max {
			add(fmt.Sprintf("min %v exceeds max %v", *cond.Min, *cond.Max))
		}

	case OpRegexMatch:
		if cond.Pattern == "" {
			add(`operator "regex_match" requires a pattern`)
		} else {
			pattern := cond.Pattern
			if cond.Flags != "" {
				pattern = "(?" + cond.Flags + ")" + pattern
			}
			if _, err := regexp.Compile(pattern); err != nil {
				add(fmt.Sprintf("invalid regex pattern: %v", err))
			}
		}

	case OpRequired, OpExists, OpNotExists:
		// presence checks carry no payload

	case "":
		add("condition is missing an operator")
	}

	return violations
}

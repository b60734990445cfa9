package rules

import (
	"log"
	"math"
	"reflect"
	"regexp"
	"strings"
)

// Outcome is the result of evaluating a single condition against a subject
type Outcome struct {
	Passed bool
	Actual interface{}
}

// Resolve walks a dot-path into nested subject data. A missing segment is a
// normal outcome, not an error: it returns (nil, false) and never panics.
func Resolve(subject Subject, dotPath string) (interface{}, bool) {
	if subject == nil || dotPath == "" {
		return nil, false
	}

	var current interface{} = map[string]interface{}(subject)
	for _, segment := range strings.Split(dotPath, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// EvaluateCondition applies one condition to one subject. It is pure and
// side-effect free. A missing or nil resolved value fails every operator:
// a rule can never vacuously pass against absent data. Unknown operators
// are logged and fail closed.
func EvaluateCondition(cond Condition, subject Subject) Outcome {
	actual, found := Resolve(subject, cond.Target)
	out := Outcome{Actual: actual}
	if !found || actual == nil {
		return out
	}

	switch cond.Operator {
	case OpEq:
		out.Passed = looseEqual(actual, cond.Value)

	case OpLte:
		a, okA := toFloat64(actual)
		e, okE := toFloat64(cond.Value)
		out.Passed = okA && okE && a <= e

	case OpGte:
		a, okA := toFloat64(actual)
		e, okE := toFloat64(cond.Value)
		out.Passed = okA && okE && a >= e

	case OpIncludes:
		out.Passed = evaluateIncludes(actual, cond)

	case OpAny:
		for _, v := range cond.Values {
			if looseEqual(actual, v) {
				out.Passed = true
				break
			}
		}

	case OpAll:
		out.Passed = evaluateAll(actual, cond.Values)

	case OpBetween:
		// Numeric subjects compare directly; string subjects compare by
		// length, preserving the historical rule-definition behavior.
		// length_range is the explicit variant for new rules.
		if a, ok := toFloat64(actual); ok {
			out.Passed = inRange(a, cond)
		} else if s, ok := actual.(string); ok {
			out.Passed = inRange(float64(len(s)), cond)
		}

	case OpNumericRange:
		a, ok := toFloat64(actual)
		out.Passed = ok && inRange(a, cond)

	case OpLengthRange:
		if n, ok := lengthOf(actual); ok {
			out.Passed = inRange(float64(n), cond)
		}

	case OpRegexMatch:
		out.Passed = evaluateRegex(actual, cond)

	case OpRequired:
		out.Passed = !isEmptyValue(actual)

	case OpRequiredAndLength:
		if n, ok := lengthOf(actual); ok {
			out.Passed = !isEmptyValue(actual) && inRange(float64(n), cond)
		}

	case OpExists:
		out.Passed = true

	case OpNotExists:
		// The missing-value guard above already failed truly absent paths,
		// so a not_exists rule passes only for a present-but-empty value.
		out.Passed = isEmptyValue(actual)

	case OpContains:
		out.Passed = evaluateContains(actual, cond.Value)

	case OpNotContains:
		out.Passed = !evaluateContains(actual, cond.Value)

	case OpMinCount:
		n, okN := lengthOf(actual)
		e, okE := toFloat64(cond.Value)
		out.Passed = okN && okE && float64(n) >= e

	case OpMaxCount:
		n, okN := lengthOf(actual)
		e, okE := toFloat64(cond.Value)
		out.Passed = okN && okE && float64(n) <= e

	default:
		log.Printf("WARNING: unknown condition operator %q on target %q", cond.Operator, cond.Target)
	}

	return out
}

// evaluateIncludes handles both shapes of the includes operator: sequence
// membership (any of the condition's values present in the subject's
// sequence) and string substring containment.
func evaluateIncludes(actual interface{}, cond Condition) bool {
	if s, ok := actual.(string); ok {
		expected, ok := cond.Value.(string)
		return ok && strings.Contains(s, expected)
	}

	seq, ok := asSlice(actual)
	if !ok {
		return false
	}
	wanted := cond.Values
	if wanted == nil && cond.Value != nil {
		wanted = []interface{}{cond.Value}
	}
	for _, w := range wanted {
		for _, elem := range seq {
			if looseEqual(elem, w) {
				return true
			}
		}
	}
	return false
}

// evaluateAll is a subset test: every required value must be present in
// the subject's sequence
func evaluateAll(actual interface{}, required []interface{}) bool {
	seq, ok := asSlice(actual)
	if !ok {
		return false
	}
	for _, w := range required {
		present := false
		for _, elem := range seq {
			if looseEqual(elem, w) {
				present = true
				break
			}
		}
		if !present {
			return false
		}
	}
	return true
}

func evaluateRegex(actual interface{}, cond Condition) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	pattern := cond.Pattern
	if cond.Flags != "" {
		pattern = "(?" + cond.Flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("WARNING: invalid regex pattern %q: %v", pattern, err)
		return false
	}
	return re.MatchString(s)
}

// evaluateContains checks substring containment for strings and element
// membership for sequences
func evaluateContains(actual, expected interface{}) bool {
	if s, ok := actual.(string); ok {
		e, ok := expected.(string)
		return ok && strings.Contains(s, e)
	}
	seq, ok := asSlice(actual)
	if !ok {
		return false
	}
	for _, elem := range seq {
		if looseEqual(elem, expected) {
			return true
		}
	}
	return false
}

// inRange checks min <= x <= max, inclusive both ends. A missing bound is
// treated as unbounded on that side.
func inRange(x float64, cond Condition) bool {
	lo := math.Inf(-1)
	hi := math.Inf(1)
	if cond.Min != nil {
		lo = *cond.Min
	}
	if cond.Max != nil {
		hi = *cond.Max
	}
	return x >= lo && x <= hi
}

// looseEqual compares values numerically when both sides convert to a
// number (YAML ints vs JSON float64s), and by deep equality otherwise
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, okA := toFloat64(a)
	bn, okB := toFloat64(b)
	if okA && okB {
		return an == bn
	}
	return reflect.DeepEqual(a, b)
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// lengthOf returns the element or byte count for strings, slices and maps
func lengthOf(v interface{}) (int, bool) {
	if s, ok := v.(string); ok {
		return len(s), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	default:
		return 0, false
	}
}

// isEmptyValue reports whether a present value carries no content: the
// empty string, an empty sequence or an empty map. Numbers and booleans
// are never empty.
func isEmptyValue(v interface{}) bool {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return false
	}
}

// asSlice normalizes any slice or array value into []interface{}
func asSlice(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

package rules

// Severity ranks how damaging a failed rule is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Tier controls how much detail an evaluation report exposes
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Condition operators supported by the evaluator
const (
	OpEq                = "eq"
	OpLte               = "lte"
	OpGte               = "gte"
	OpIncludes          = "includes"
	OpAny               = "any"
	OpAll               = "all"
	OpBetween           = "between"
	OpNumericRange      = "numeric_range"
	OpLengthRange       = "length_range"
	OpRegexMatch        = "regex_match"
	OpRequired          = "required"
	OpRequiredAndLength = "required_and_length"
	OpExists            = "exists"
	OpNotExists         = "not_exists"
	OpContains          = "contains"
	OpNotContains       = "not_contains"
	OpMinCount          = "min_count"
	OpMaxCount          = "max_count"
)

// Condition is a tagged union keyed by Operator. Which payload fields are
// meaningful depends on the operator; the schema validator rejects a
// condition whose payload does not match its operator.
type Condition struct {
	Operator string        `yaml:"operator" json:"operator"`
	Target   string        `yaml:"target" json:"target"` // dot-path into the subject
	Value    interface{}   `yaml:"value,omitempty" json:"value,omitempty"`
	Values   []interface{} `yaml:"values,omitempty" json:"values,omitempty"`
	Min      *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64      `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern  string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Flags    string        `yaml:"flags,omitempty" json:"flags,omitempty"`
}

// Rule is a single declarative check loaded from YAML
type Rule struct {
	ID             string    `yaml:"id" json:"id"`
	Name           string    `yaml:"name" json:"name"`
	Description    string    `yaml:"description,omitempty" json:"description,omitempty"`
	Severity       Severity  `yaml:"severity" json:"severity"`
	Priority       int       `yaml:"priority" json:"priority"` // 1-10, higher evaluates first
	Condition      Condition `yaml:"condition" json:"condition"`
	Message        string    `yaml:"message" json:"message"`
	Recommendation string    `yaml:"recommendation,omitempty" json:"recommendation,omitempty"`
	ScoreImpact    float64   `yaml:"score_impact" json:"score_impact"` // positive magnitude; sign applied by the engine
	Enabled        *bool     `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Category       string    `yaml:"category,omitempty" json:"category,omitempty"`
	Tags           []string  `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// IsEnabled reports whether the rule participates in evaluation.
// A rule with no explicit enabled flag is enabled.
func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Category groups related rules and carries the weight used in the
// overall score aggregation
type Category struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Weight      float64 `yaml:"weight,omitempty" json:"weight,omitempty"` // defaults to 1.0
	Enabled     *bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Rules       []Rule  `yaml:"rules" json:"rules"`
}

// IsEnabled reports whether the category participates in evaluation
func (c Category) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// EffectiveWeight returns the category weight, defaulting to 1.0 when unset
func (c Category) EffectiveWeight() float64 {
	if c.Weight <= 0 {
		return 1.0
	}
	return c.Weight
}

// RuleSetMeta carries rule-set identity and provenance
type RuleSetMeta struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Industry    string   `yaml:"industry,omitempty" json:"industry,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// GradeRange maps an inclusive score range to a letter grade
type GradeRange struct {
	Grade string  `yaml:"grade" json:"grade"`
	Min   float64 `yaml:"min" json:"min"`
	Max   float64 `yaml:"max" json:"max"`
}

// RuleSet is the complete parsed and validated rule definition document.
// It is immutable after loading; concurrent evaluations share it safely.
type RuleSet struct {
	Meta         RuleSetMeta         `yaml:"rule_set" json:"rule_set"`
	GradeMapping []GradeRange        `yaml:"grade_mapping,omitempty" json:"grade_mapping,omitempty"`
	Categories   map[string]Category `yaml:"categories" json:"categories"`
}

// DefaultGradeMapping is used when a rule set declares no grade_mapping
func DefaultGradeMapping() []GradeRange {
	return []GradeRange{
		{Grade: "A", Min: 90, Max: 100},
		{Grade: "B", Min: 75, Max: 89},
		{Grade: "C", Min: 60, Max: 74},
		{Grade: "D", Min: 40, Max: 59},
		{Grade: "F", Min: 0, Max: 39},
	}
}

// GradeFor resolves a score to a grade label via the set's mapping,
// falling back to "Unknown" for unmapped scores
func (rs *RuleSet) GradeFor(score int) string {
	mapping := rs.GradeMapping
	if len(mapping) == 0 {
		mapping = DefaultGradeMapping()
	}
	for _, r := range mapping {
		if float64(score) >= r.Min && float64(score) <= r.Max {
			return r.Grade
		}
	}
	return "Unknown"
}

// Subject is the externally supplied record being evaluated: arbitrarily
// nested key/value data addressed by dot-paths. The engine only reads it.
type Subject = map[string]interface{}

// RuleResult is the outcome of evaluating one rule against a subject
type RuleResult struct {
	RuleID         string      `json:"rule_id"`
	Passed         bool        `json:"passed"`
	Severity       Severity    `json:"severity"`
	Priority       int         `json:"priority"`
	Category       string      `json:"category"`
	Message        string      `json:"message,omitempty"` // populated on failure only
	Recommendation string      `json:"recommendation,omitempty"`
	ActualValue    interface{} `json:"actual_value,omitempty"`
}

// RuleFailure identifies one failed rule for in-process consumers such as
// metrics. It carries no tier-gated detail.
type RuleFailure struct {
	RuleID   string
	Severity Severity
}

// CategoryScore is the per-category breakdown in a report
type CategoryScore struct {
	Score       int `json:"score"`
	PassedRules int `json:"passed_rules"`
	TotalRules  int `json:"total_rules"`
}

// Report is the aggregate evaluation result returned to callers.
// It is constructed once per evaluation and never mutated afterwards.
type Report struct {
	RuleSet          string                   `json:"rule_set"`
	RuleSetVersion   string                   `json:"rule_set_version,omitempty"`
	Tier             Tier                     `json:"tier"`
	OverallScore     int                      `json:"overall_score"`
	Grade            string                   `json:"grade"`
	Categories       map[string]CategoryScore `json:"categories"`
	CriticalIssues   []RuleResult             `json:"critical_issues"`
	Rules            []RuleResult             `json:"rules,omitempty"`           // premium only
	Recommendations  []string                 `json:"recommendations,omitempty"` // premium only
	Evidence         Subject                  `json:"evidence,omitempty"`        // premium only
	EvaluationTimeMs int64                    `json:"evaluation_time_ms"`

	// Failures lists every failed rule regardless of tier, so metrics do
	// not depend on what the caller's tier exposes. Never serialized.
	Failures []RuleFailure `json:"-"`
}

// Stats aggregates totals across a batch of reports
type Stats struct {
	TotalReports int     `json:"total_reports"`
	TotalRules   int     `json:"total_rules"`
	TotalPassed  int     `json:"total_passed"`
	TotalFailed  int     `json:"total_failed"`
	MinScore     int     `json:"min_score"`
	MaxScore     int     `json:"max_score"`
	AverageScore float64 `json:"average_score"`
}

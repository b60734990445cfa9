package rules

import (
	"log"
	"math"
	"sort"
	"time"
)

// Default caps applied to free-tier reports
const (
	DefaultCriticalIssueCap  = 3
	DefaultRecommendationCap = 10
)

// Engine evaluates rule sets against subjects and aggregates the results
// into tier-aware reports. Evaluation is pure and CPU-bound; the engine
// holds no per-evaluation state, so concurrent calls are safe.
type Engine struct {
	store             *Store
	criticalIssueCap  int
	recommendationCap int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithCriticalIssueCap overrides how many critical issues a free-tier
// report may carry
func WithCriticalIssueCap(n int) EngineOption {
	return func(e *Engine) { e.criticalIssueCap = n }
}

// WithRecommendationCap overrides how many recommendations a premium
// report may carry
func WithRecommendationCap(n int) EngineOption {
	return func(e *Engine) { e.recommendationCap = n }
}

// NewEngine creates an evaluation engine backed by a rule-set store
func NewEngine(store *Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:             store,
		criticalIssueCap:  DefaultCriticalIssueCap,
		recommendationCap: DefaultRecommendationCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every enabled rule of every enabled category against the
// subject and returns a report. It never returns an error or panics: any
// internal failure degrades into a well-formed report with score 0 and
// grade "Error", with the timer still populated.
func (e *Engine) Evaluate(rs *RuleSet, subject Subject, tier Tier) *Report {
	start := time.Now()
	report := e.evaluate(rs, subject, tier)
	report.EvaluationTimeMs = time.Since(start).Milliseconds()
	return report
}

func (e *Engine) evaluate(rs *RuleSet, subject Subject, tier Tier) (report *Report) {
	name := ""
	if rs != nil {
		name = rs.Meta.Name
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: evaluation of rule set %q panicked: %v", name, r)
			report = degradedReport(name, tier)
		}
	}()

	if rs == nil {
		return degradedReport(name, tier)
	}

	type flatRule struct {
		key  string
		rule Rule
	}

	// Category map iteration order is not stable; sort keys so identical
	// inputs always yield identical reports.
	keys := make([]string, 0, len(rs.Categories))
	for key := range rs.Categories {
		if rs.Categories[key].IsEnabled() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var flat []flatRule
	for _, key := range keys {
		for _, rule := range rs.Categories[key].Rules {
			if rule.IsEnabled() {
				flat = append(flat, flatRule{key: key, rule: rule})
			}
		}
	}
	// Stable sort: equal priorities keep their rule-set order
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].rule.Priority > flat[j].rule.Priority
	})

	type accumulator struct {
		possible, achieved float64
		passed, total      int
	}
	accs := make(map[string]*accumulator, len(keys))
	for _, key := range keys {
		accs[key] = &accumulator{}
	}

	var results []RuleResult
	for _, fr := range flat {
		outcome := evaluateRuleSafely(fr.rule, subject)

		res := RuleResult{
			RuleID:      fr.rule.ID,
			Passed:      outcome.Passed,
			Severity:    fr.rule.Severity,
			Priority:    fr.rule.Priority,
			Category:    fr.key,
			ActualValue: outcome.Actual,
		}
		if !outcome.Passed {
			res.Message = fr.rule.Message
			res.Recommendation = fr.rule.Recommendation
		}
		results = append(results, res)

		acc := accs[fr.key]
		acc.total++
		acc.possible += fr.rule.ScoreImpact
		if outcome.Passed {
			acc.passed++
			acc.achieved += fr.rule.ScoreImpact
		}
	}

	categories := make(map[string]CategoryScore, len(keys))
	var weightedSum, weightSum float64
	for _, key := range keys {
		acc := accs[key]
		score := 100 // a category with no checks cannot fail
		if acc.possible > 0 {
			score = int(math.Round(acc.achieved / acc.possible * 100))
		}
		categories[key] = CategoryScore{
			Score:       score,
			PassedRules: acc.passed,
			TotalRules:  acc.total,
		}
		w := rs.Categories[key].EffectiveWeight()
		weightedSum += w * float64(score)
		weightSum += w
	}

	overall := 100
	if weightSum > 0 {
		// Weights are normalized here, so authors' weights need not sum
		// to 1 and a fully compliant subject always scores 100.
		overall = int(math.Round(weightedSum / weightSum))
	}

	report = &Report{
		RuleSet:        rs.Meta.Name,
		RuleSetVersion: rs.Meta.Version,
		Tier:           tier,
		OverallScore:   overall,
		Grade:          rs.GradeFor(overall),
		Categories:     categories,
		CriticalIssues: []RuleResult{},
	}

	// Record failures before tier gating trims anything, so downstream
	// failure counts do not vary with the caller's tier
	for _, res := range results {
		if !res.Passed {
			report.Failures = append(report.Failures, RuleFailure{RuleID: res.RuleID, Severity: res.Severity})
		}
	}

	for _, res := range results {
		if !res.Passed && res.Severity == SeverityCritical {
			issue := res
			if tier != TierPremium {
				issue.Recommendation = ""
			}
			report.CriticalIssues = append(report.CriticalIssues, issue)
		}
	}
	if tier != TierPremium && len(report.CriticalIssues) > e.criticalIssueCap {
		report.CriticalIssues = report.CriticalIssues[:e.criticalIssueCap]
	}

	if tier == TierPremium {
		report.Rules = results
		report.Recommendations = collectRecommendations(results, e.recommendationCap)
		report.Evidence = snapshotSubject(subject)
	}

	return report
}

// EvaluateByName looks up a loaded rule set and evaluates it. An unknown
// name degrades into an error report rather than failing the caller.
func (e *Engine) EvaluateByName(name string, subject Subject, tier Tier) *Report {
	start := time.Now()
	rs, ok := e.store.GetRuleSet(name)
	if !ok {
		log.Printf("WARNING: rule set %q is not loaded", name)
		report := degradedReport(name, tier)
		report.EvaluationTimeMs = time.Since(start).Milliseconds()
		return report
	}
	return e.Evaluate(rs, subject, tier)
}

// EvaluateAll runs the same subject against every loaded rule set
// independently and returns one report per set
func (e *Engine) EvaluateAll(subject Subject, tier Tier) []*Report {
	sets := e.store.LoadedRuleSets()
	reports := make([]*Report, 0, len(sets))
	for _, rs := range sets {
		reports = append(reports, e.Evaluate(rs, subject, tier))
	}
	return reports
}

// ComputeStats reduces a batch of reports into aggregate statistics
func ComputeStats(reports []*Report) Stats {
	stats := Stats{TotalReports: len(reports)}
	if len(reports) == 0 {
		return stats
	}

	stats.MinScore = reports[0].OverallScore
	stats.MaxScore = reports[0].OverallScore
	sum := 0
	for _, r := range reports {
		sum += r.OverallScore
		if r.OverallScore < stats.MinScore {
			stats.MinScore = r.OverallScore
		}
		if r.OverallScore > stats.MaxScore {
			stats.MaxScore = r.OverallScore
		}
		for _, cs := range r.Categories {
			stats.TotalRules += cs.TotalRules
			stats.TotalPassed += cs.PassedRules
		}
	}
	stats.TotalFailed = stats.TotalRules - stats.TotalPassed
	stats.AverageScore = float64(sum) / float64(len(reports))
	return stats
}

// evaluateRuleSafely converts a panic inside one condition evaluation into
// a failed result for that rule, so a single pathological rule cannot
// abort the rest of the set
func evaluateRuleSafely(rule Rule, subject Subject) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("WARNING: rule %s panicked during evaluation: %v", rule.ID, r)
			out = Outcome{Passed: false}
		}
	}()
	return EvaluateCondition(rule.Condition, subject)
}

// collectRecommendations deduplicates failed-rule recommendations in
// evaluation order, capped at n
func collectRecommendations(results []RuleResult, n int) []string {
	seen := make(map[string]bool)
	var recs []string
	for _, res := range results {
		if res.Passed || res.Recommendation == "" || seen[res.Recommendation] {
			continue
		}
		seen[res.Recommendation] = true
		recs = append(recs, res.Recommendation)
		if len(recs) == n {
			break
		}
	}
	return recs
}

func snapshotSubject(subject Subject) Subject {
	if subject == nil {
		return nil
	}
	evidence := make(Subject, len(subject))
	for k, v := range subject {
		evidence[k] = v
	}
	return evidence
}

func degradedReport(name string, tier Tier) *Report {
	return &Report{
		RuleSet:        name,
		Tier:           tier,
		OverallScore:   0,
		Grade:          "Error",
		Categories:     map[string]CategoryScore{},
		CriticalIssues: []RuleResult{},
	}
}

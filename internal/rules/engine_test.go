package rules

import (
	"reflect"
	"testing"
)

func twoRuleSet() *RuleSet {
	return &RuleSet{
		Meta: RuleSetMeta{Name: "test-set", Version: "1.0.0"},
		Categories: map[string]Category{
			"content": {
				Name:   "Content",
				Weight: 1.0,
				Rules: []Rule{
					{
						ID:             "C-001",
						Name:           "FAQ schema present",
						Severity:       SeverityCritical,
						Priority:       10,
						Condition:      Condition{Operator: OpEq, Target: "schema.has_faq_schema", Value: true},
						Message:        "No FAQ schema found",
						Recommendation: "Add FAQPage structured data",
						ScoreImpact:    50,
					},
					{
						ID:          "C-002",
						Name:        "Enough words",
						Severity:    SeverityMedium,
						Priority:    5,
						Condition:   Condition{Operator: OpGte, Target: "content.word_count", Value: 300},
						Message:     "Content is too thin",
						ScoreImpact: 50,
					},
				},
			},
		},
	}
}

func TestEvaluateScoring(t *testing.T) {
	engine := NewEngine(NewStore())
	subject := Subject{
		"schema":  map[string]interface{}{"has_faq_schema": false},
		"content": map[string]interface{}{"word_count": 850},
	}

	report := engine.Evaluate(twoRuleSet(), subject, TierPremium)

	if report.OverallScore != 50 {
		t.Errorf("overall score = %d, want 50", report.OverallScore)
	}
	cs, ok := report.Categories["content"]
	if !ok {
		t.Fatal("missing content category in report")
	}
	if cs.Score != 50 || cs.PassedRules != 1 || cs.TotalRules != 2 {
		t.Errorf("category score = %+v, want score 50, 1/2 passed", cs)
	}
	if report.Grade != "D" {
		t.Errorf("grade = %q, want D for score 50", report.Grade)
	}
	if len(report.CriticalIssues) != 1 || report.CriticalIssues[0].RuleID != "C-001" {
		t.Errorf("critical issues = %+v, want exactly C-001", report.CriticalIssues)
	}
}

func TestEvaluateTierGating(t *testing.T) {
	engine := NewEngine(NewStore())
	subject := Subject{
		"schema":  map[string]interface{}{"has_faq_schema": false},
		"content": map[string]interface{}{"word_count": 100},
	}
	rs := twoRuleSet()

	free := engine.Evaluate(rs, subject, TierFree)
	premium := engine.Evaluate(rs, subject, TierPremium)

	if free.OverallScore != premium.OverallScore {
		t.Errorf("tiers disagree on score: free %d, premium %d", free.OverallScore, premium.OverallScore)
	}
	if free.Rules != nil {
		t.Error("free tier must not expose the full rule list")
	}
	if free.Recommendations != nil {
		t.Error("free tier must not expose recommendations")
	}
	if free.Evidence != nil {
		t.Error("free tier must not expose evidence")
	}
	for _, issue := range free.CriticalIssues {
		if issue.Recommendation != "" {
			t.Errorf("free-tier critical issue %s leaked a recommendation", issue.RuleID)
		}
	}

	if len(premium.Rules) != 2 {
		t.Errorf("premium rules = %d, want 2", len(premium.Rules))
	}
	if len(premium.Recommendations) != 1 || premium.Recommendations[0] != "Add FAQPage structured data" {
		t.Errorf("premium recommendations = %v", premium.Recommendations)
	}
	if premium.Evidence == nil {
		t.Error("premium report should carry the evidence snapshot")
	}
	if premium.CriticalIssues[0].Recommendation == "" {
		t.Error("premium critical issue should carry its recommendation")
	}
}

func TestEvaluateFreeTierCriticalIssueCap(t *testing.T) {
	rs := &RuleSet{
		Meta:       RuleSetMeta{Name: "caps", Version: "1.0.0"},
		Categories: map[string]Category{"c": {Name: "c", Rules: nil}},
	}
	for i := 0; i < 5; i++ {
		cat := rs.Categories["c"]
		cat.Rules = append(cat.Rules, Rule{
			ID:          "CAP-00" + string(rune('1'+i)),
			Name:        "always fails",
			Severity:    SeverityCritical,
			Priority:    5,
			Condition:   Condition{Operator: OpRequired, Target: "missing.field"},
			Message:     "missing",
			ScoreImpact: 10,
		})
		rs.Categories["c"] = cat
	}

	engine := NewEngine(NewStore(), WithCriticalIssueCap(2))
	subject := Subject{}

	free := engine.Evaluate(rs, subject, TierFree)
	if len(free.CriticalIssues) != 2 {
		t.Errorf("free-tier critical issues = %d, want capped at 2", len(free.CriticalIssues))
	}

	premium := engine.Evaluate(rs, subject, TierPremium)
	if len(premium.CriticalIssues) != 5 {
		t.Errorf("premium critical issues = %d, want all 5", len(premium.CriticalIssues))
	}

	// The cap gates what the caller sees, not the failure record
	if len(free.Failures) != 5 {
		t.Errorf("free-tier failures = %d, want all 5 regardless of cap", len(free.Failures))
	}
	if len(free.Failures) != len(premium.Failures) {
		t.Errorf("failure record differs across tiers: free %d, premium %d", len(free.Failures), len(premium.Failures))
	}
}

func TestEvaluateWeightNormalization(t *testing.T) {
	passing := Condition{Operator: OpExists, Target: "present"}
	failing := Condition{Operator: OpRequired, Target: "absent"}
	rs := &RuleSet{
		Meta: RuleSetMeta{Name: "weighted", Version: "1.0.0"},
		Categories: map[string]Category{
			"heavy": {Name: "heavy", Weight: 3.0, Rules: []Rule{
				{ID: "H-001", Name: "h", Severity: SeverityHigh, Priority: 5, Condition: passing, Message: "m", ScoreImpact: 10},
			}},
			"light": {Name: "light", Weight: 1.0, Rules: []Rule{
				{ID: "L-001", Name: "l", Severity: SeverityLow, Priority: 5, Condition: failing, Message: "m", ScoreImpact: 10},
			}},
		},
	}

	engine := NewEngine(NewStore())
	report := engine.Evaluate(rs, Subject{"present": "yes"}, TierFree)

	// (3*100 + 1*0) / 4 = 75
	if report.OverallScore != 75 {
		t.Errorf("overall score = %d, want 75", report.OverallScore)
	}
}

func TestEvaluateEmptyCategoryScoresFull(t *testing.T) {
	rs := &RuleSet{
		Meta: RuleSetMeta{Name: "empty-cat", Version: "1.0.0"},
		Categories: map[string]Category{
			"void": {Name: "void", Weight: 1.0, Rules: []Rule{}},
		},
	}

	engine := NewEngine(NewStore())
	report := engine.Evaluate(rs, Subject{}, TierFree)

	if report.Categories["void"].Score != 100 {
		t.Errorf("empty category score = %d, want 100", report.Categories["void"].Score)
	}
	if report.OverallScore != 100 {
		t.Errorf("overall score = %d, want 100", report.OverallScore)
	}
}

func TestEvaluateSkipsDisabled(t *testing.T) {
	off := false
	rs := twoRuleSet()
	cat := rs.Categories["content"]
	cat.Rules[1].Enabled = &off
	rs.Categories["content"] = cat

	engine := NewEngine(NewStore())
	subject := Subject{
		"schema":  map[string]interface{}{"has_faq_schema": true},
		"content": map[string]interface{}{"word_count": 10},
	}

	report := engine.Evaluate(rs, subject, TierPremium)
	if report.Categories["content"].TotalRules != 1 {
		t.Errorf("total rules = %d, want 1 after disabling C-002", report.Categories["content"].TotalRules)
	}
	if report.OverallScore != 100 {
		t.Errorf("overall score = %d, want 100 with failing rule disabled", report.OverallScore)
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	rs := &RuleSet{
		Meta: RuleSetMeta{Name: "prio", Version: "1.0.0"},
		Categories: map[string]Category{
			"c": {Name: "c", Rules: []Rule{
				{ID: "LOW", Name: "low", Severity: SeverityLow, Priority: 1, Condition: Condition{Operator: OpRequired, Target: "x"}, Message: "m", ScoreImpact: 10},
				{ID: "HIGH", Name: "high", Severity: SeverityHigh, Priority: 9, Condition: Condition{Operator: OpRequired, Target: "x"}, Message: "m", ScoreImpact: 10},
				{ID: "MID-A", Name: "a", Severity: SeverityMedium, Priority: 5, Condition: Condition{Operator: OpRequired, Target: "x"}, Message: "m", ScoreImpact: 10},
				{ID: "MID-B", Name: "b", Severity: SeverityMedium, Priority: 5, Condition: Condition{Operator: OpRequired, Target: "x"}, Message: "m", ScoreImpact: 10},
			}},
		},
	}

	engine := NewEngine(NewStore())
	report := engine.Evaluate(rs, Subject{}, TierPremium)

	var order []string
	for _, r := range report.Rules {
		order = append(order, r.RuleID)
	}
	want := []string{"HIGH", "MID-A", "MID-B", "LOW"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("rule order = %v, want %v", order, want)
	}
}

func TestEvaluateDegradesInsteadOfFailing(t *testing.T) {
	engine := NewEngine(NewStore())

	report := engine.Evaluate(nil, Subject{}, TierFree)
	if report == nil {
		t.Fatal("evaluation must always return a report")
	}
	if report.OverallScore != 0 || report.Grade != "Error" {
		t.Errorf("degraded report = score %d grade %q, want 0 / Error", report.OverallScore, report.Grade)
	}
	if report.Categories == nil || report.CriticalIssues == nil {
		t.Error("degraded report should carry empty, non-nil collections")
	}
}

func TestEvaluateByNameUnknownSet(t *testing.T) {
	engine := NewEngine(NewStore())

	report := engine.EvaluateByName("no-such-set", Subject{}, TierFree)
	if report.Grade != "Error" {
		t.Errorf("grade = %q, want Error for unknown rule set", report.Grade)
	}
	if report.RuleSet != "no-such-set" {
		t.Errorf("report rule set = %q, want requested name", report.RuleSet)
	}
}

func TestEvaluateAll(t *testing.T) {
	store := NewStore()
	data, err := MarshalRuleSet(twoRuleSet())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, name := range []string{"zeta-set", "alpha-set"} {
		if _, err := store.LoadRuleSetFromContent(data, name); err != nil {
			t.Fatalf("loading %s: %v", name, err)
		}
	}
	engine := NewEngine(store)
	subject := Subject{
		"schema":  map[string]interface{}{"has_faq_schema": true},
		"content": map[string]interface{}{"word_count": 850},
	}

	reports := engine.EvaluateAll(subject, TierFree)
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want one per loaded rule set", len(reports))
	}
	want := []string{"alpha-set", "zeta-set"}
	for i, report := range reports {
		if report.RuleSet != want[i] {
			t.Errorf("report %d is for %q, want %q (name order)", i, report.RuleSet, want[i])
		}
		if report.OverallScore != 100 {
			t.Errorf("report %d score = %d, want 100", i, report.OverallScore)
		}
	}

	if got := NewEngine(NewStore()).EvaluateAll(subject, TierFree); len(got) != 0 {
		t.Errorf("empty store produced %d reports, want none", len(got))
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	engine := NewEngine(NewStore())
	rs := twoRuleSet()
	subject := Subject{
		"schema":  map[string]interface{}{"has_faq_schema": false},
		"content": map[string]interface{}{"word_count": 850},
	}

	first := engine.Evaluate(rs, subject, TierPremium)
	for i := 0; i < 5; i++ {
		got := engine.Evaluate(rs, subject, TierPremium)
		if got.OverallScore != first.OverallScore || got.Grade != first.Grade {
			t.Fatalf("run %d: score %d grade %q, first run had %d %q", i, got.OverallScore, got.Grade, first.OverallScore, first.Grade)
		}
		if !reflect.DeepEqual(got.Categories, first.Categories) {
			t.Fatalf("run %d produced different category scores", i)
		}
	}
}

func TestGradeFor(t *testing.T) {
	rs := &RuleSet{Meta: RuleSetMeta{Name: "g"}}

	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"}, {89, "B"}, {75, "B"},
		{74, "C"}, {60, "C"}, {59, "D"}, {40, "D"},
		{39, "F"}, {0, "F"}, {-1, "Unknown"},
	}
	for _, tt := range tests {
		if got := rs.GradeFor(tt.score); got != tt.want {
			t.Errorf("GradeFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}

	rs.GradeMapping = []GradeRange{{Grade: "Pass", Min: 50, Max: 100}}
	if got := rs.GradeFor(30); got != "Unknown" {
		t.Errorf("GradeFor(30) with sparse mapping = %q, want Unknown", got)
	}
	if got := rs.GradeFor(80); got != "Pass" {
		t.Errorf("GradeFor(80) = %q, want Pass", got)
	}
}

func TestComputeStats(t *testing.T) {
	reports := []*Report{
		{OverallScore: 40, Categories: map[string]CategoryScore{"a": {PassedRules: 2, TotalRules: 5}}},
		{OverallScore: 90, Categories: map[string]CategoryScore{"a": {PassedRules: 5, TotalRules: 5}}},
	}

	stats := ComputeStats(reports)
	if stats.TotalReports != 2 || stats.MinScore != 40 || stats.MaxScore != 90 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalRules != 10 || stats.TotalPassed != 7 || stats.TotalFailed != 3 {
		t.Errorf("rule totals = %d/%d/%d, want 10/7/3", stats.TotalRules, stats.TotalPassed, stats.TotalFailed)
	}
	if stats.AverageScore != 65 {
		t.Errorf("average = %v, want 65", stats.AverageScore)
	}

	empty := ComputeStats(nil)
	if empty.TotalReports != 0 || empty.AverageScore != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

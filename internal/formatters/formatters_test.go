package formatters_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aeo-score-service/internal/formatters"
	"aeo-score-service/internal/rules"
)

func sampleReport() *rules.Report {
	return &rules.Report{
		RuleSet:        "aeo-default",
		RuleSetVersion: "1.0.0",
		Tier:           rules.TierPremium,
		OverallScore:   72,
		Grade:          "C",
		Categories: map[string]rules.CategoryScore{
			"schema_markup":     {Score: 50, PassedRules: 1, TotalRules: 2},
			"content_structure": {Score: 100, PassedRules: 3, TotalRules: 3},
		},
		CriticalIssues: []rules.RuleResult{
			{RuleID: "SCHEMA-001", Severity: rules.SeverityCritical, Category: "schema_markup",
				Message: "No FAQ schema found", Recommendation: "Add FAQPage structured data"},
		},
		Rules: []rules.RuleResult{
			{RuleID: "SCHEMA-001", Passed: false, Severity: rules.SeverityCritical, Category: "schema_markup", Message: "No FAQ schema found"},
			{RuleID: "CONTENT-001", Passed: true, Severity: rules.SeverityMedium, Category: "content_structure"},
		},
		Recommendations:  []string{"Add FAQPage structured data"},
		EvaluationTimeMs: 3,
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	return buf.String()
}

func TestText(t *testing.T) {
	output := captureStdout(t, func() {
		formatters.Text("tacocasa.example", sampleReport())
	})

	expected := []string{
		"AEO Score Report for tacocasa.example",
		"Rule Set: aeo-default (v1.0.0)",
		"Overall Score: 72/100 (Grade C)",
		"schema_markup",
		"content_structure",
		"[SCHEMA-001] No FAQ schema found",
		"Fix: Add FAQPage structured data",
		"1. Add FAQPage structured data",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain: %s", want)
		}
	}
}

func TestJSON(t *testing.T) {
	output := captureStdout(t, func() {
		formatters.JSON("tacocasa.example", sampleReport())
	})

	var decoded formatters.OutputData
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.SubjectName != "tacocasa.example" {
		t.Errorf("subject_name = %q", decoded.SubjectName)
	}
	if decoded.Report == nil || decoded.Report.OverallScore != 72 {
		t.Errorf("report = %+v", decoded.Report)
	}
}

func TestSummary(t *testing.T) {
	output := captureStdout(t, func() {
		formatters.Summary(rules.Stats{
			TotalReports: 4, TotalRules: 40, TotalPassed: 31, TotalFailed: 9,
			MinScore: 55, MaxScore: 95, AverageScore: 77.5,
		})
	})

	for _, want := range []string{
		"Reports:       4",
		"Rules checked: 40 (31 passed, 9 failed)",
		"min 55, max 95, avg 77.5",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain: %s", want)
		}
	}
}

func TestHTML(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "report.html")

	captureStdout(t, func() {
		formatters.HTML("tacocasa.example", sampleReport(), outputFile)
	})

	data, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("HTML report was not written: %v", err)
	}
	html := string(data)

	for _, want := range []string{
		"<!DOCTYPE html>",
		"tacocasa.example",
		"Grade C",
		"schema_markup",
		"No FAQ schema found",
		"status-warning",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected HTML to contain: %s", want)
		}
	}
}

package formatters

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"sort"
	"strings"

	"aeo-score-service/internal/rules"
	"aeo-score-service/web"
)

// OutputData represents the complete evaluation output
type OutputData struct {
	SubjectName string        `json:"subject_name"`
	Report      *rules.Report `json:"report"`
}

// JSON outputs a report in JSON format
func JSON(subjectName string, report *rules.Report) {
	output := OutputData{
		SubjectName: subjectName,
		Report:      report,
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling JSON: %v", err)
	}

	fmt.Println(string(jsonData))
}

// Text outputs a report in human-readable text format
func Text(subjectName string, report *rules.Report) {
	fmt.Printf("AEO Score Report for %s\n", subjectName)
	fmt.Printf("=====================================\n\n")
	fmt.Printf("Rule Set: %s", report.RuleSet)
	if report.RuleSetVersion != "" {
		fmt.Printf(" (v%s)", report.RuleSetVersion)
	}
	fmt.Printf("\nOverall Score: %d/100 (Grade %s)\n\n", report.OverallScore, report.Grade)

	fmt.Printf("Category Breakdown:\n")
	fmt.Printf("-------------------\n")
	for _, name := range sortedCategoryNames(report) {
		cs := report.Categories[name]
		fmt.Printf("%-24s %3d/100  (%d/%d rules passed)\n", name, cs.Score, cs.PassedRules, cs.TotalRules)
	}
	fmt.Println()

	if len(report.CriticalIssues) > 0 {
		fmt.Printf("Critical Issues:\n")
		fmt.Printf("----------------\n")
		for _, issue := range report.CriticalIssues {
			fmt.Printf("[%s] %s\n", issue.RuleID, issue.Message)
			if issue.Recommendation != "" {
				fmt.Printf("  Fix: %s\n", issue.Recommendation)
			}
		}
		fmt.Println()
	}

	if len(report.Recommendations) > 0 {
		fmt.Printf("Recommendations:\n")
		fmt.Printf("----------------\n")
		for i, rec := range report.Recommendations {
			fmt.Printf("%d. %s\n", i+1, rec)
		}
		fmt.Println()
	}

	fmt.Printf("Evaluated in %dms\n", report.EvaluationTimeMs)
}

// Summary outputs aggregate statistics for a batch of reports
func Summary(stats rules.Stats) {
	fmt.Printf("Batch Summary\n")
	fmt.Printf("=============\n")
	fmt.Printf("Reports:       %d\n", stats.TotalReports)
	fmt.Printf("Rules checked: %d (%d passed, %d failed)\n", stats.TotalRules, stats.TotalPassed, stats.TotalFailed)
	fmt.Printf("Scores:        min %d, max %d, avg %.1f\n", stats.MinScore, stats.MaxScore, stats.AverageScore)
}

// HTMLData represents a single report's data for HTML output
type HTMLData struct {
	SubjectName string
	Report      *rules.Report
	Categories  []CategoryRow
	StatusClass string
	Timestamp   string
	CSS         template.CSS
	JS          template.JS
}

// CategoryRow is one category's breakdown in display order
type CategoryRow struct {
	Name        string
	Score       rules.CategoryScore
	StatusClass string
}

// HTML outputs a report as a standalone HTML page
func HTML(subjectName string, report *rules.Report, outputFile string) {
	data := HTMLData{
		SubjectName: subjectName,
		Report:      report,
		StatusClass: getStatusClass(report.OverallScore),
		Timestamp:   os.Getenv("TIMESTAMP"),
		CSS:         template.CSS(web.CSS),
		JS:          template.JS(web.JS),
	}
	for _, name := range sortedCategoryNames(report) {
		cs := report.Categories[name]
		data.Categories = append(data.Categories, CategoryRow{
			Name:        name,
			Score:       cs,
			StatusClass: getStatusClass(cs.Score),
		})
	}

	tmpl := template.Must(template.New("report.html").Funcs(getTemplateFuncs()).ParseFS(web.Templates, "templates/report.html"))

	var output *os.File
	var err error

	if outputFile != "" {
		output, err = os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			log.Fatalf("Error creating HTML file: %v", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	err = tmpl.Execute(output, data)
	if err != nil {
		log.Fatalf("Error executing template: %v", err)
	}

	if outputFile != "" {
		fmt.Printf("HTML report generated: %s\n", outputFile)
	}
}

func sortedCategoryNames(report *rules.Report) []string {
	names := make([]string, 0, len(report.Categories))
	for name := range report.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getStatusClass(score int) string {
	switch {
	case score >= 90:
		return "status-excellent"
	case score >= 75:
		return "status-good"
	case score >= 50:
		return "status-warning"
	default:
		return "status-poor"
	}
}

func getTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"lower": func(s string) string {
			return strings.ToLower(s)
		},
		"passRate": func(passed, total int) float64 {
			if total == 0 {
				return 100
			}
			return float64(passed) / float64(total) * 100
		},
		"getSeverityClass": func(severity rules.Severity) string {
			switch severity {
			case rules.SeverityCritical:
				return "severity-critical"
			case rules.SeverityHigh:
				return "severity-high"
			case rules.SeverityMedium:
				return "severity-medium"
			default:
				return "severity-low"
			}
		},
		"getRuleStatus": func(passed bool) string {
			if passed {
				return "✓ Passed"
			}
			return "⚠ Needs Attention"
		},
		"getRuleStatusClass": func(passed bool) string {
			if passed {
				return "status-passed"
			}
			return "status-failed"
		},
	}
}

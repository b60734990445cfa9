package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aeo-score-service/internal/formatters"
	"aeo-score-service/internal/rules"
	"aeo-score-service/internal/storage"
	"aeo-score-service/internal/subjects"

	"github.com/spf13/cobra"
)

var (
	// Rule set flags
	rulesFile   string
	rulesDir    string
	ruleSetName string
	tierName    string

	// Output flags
	outputFormats string // Comma-separated: text,json,html
	jsonFile      string
	htmlFile      string
	errorsFile    string

	// Single subject flags
	subjectFile string

	// Batch flags
	subjectDir string
	minScore   int

	// S3 flags
	s3Rules  bool
	s3Upload bool
	s3Bucket string
	s3Prefix string
	s3Region string
	s3RunID  string
)

// SubjectResult pairs one subject with its evaluation report
type SubjectResult struct {
	SubjectName string        `json:"subject_name"`
	SubjectPath string        `json:"subject_path,omitempty"`
	Report      *rules.Report `json:"report"`
}

// BatchReport represents the complete output for a directory evaluation
type BatchReport struct {
	Timestamp     string          `json:"timestamp"`
	RuleSet       string          `json:"rule_set"`
	Tier          string          `json:"tier"`
	TotalSubjects int             `json:"total_subjects"`
	AverageScore  float64         `json:"average_score"`
	Results       []SubjectResult `json:"results"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate subjects against an AEO rule set",
	Long: `Evaluate extracted page data against a declarative AEO rule set.

Modes:
  Single subject: Specify --subject to score one file
  Batch:          Specify --subject-dir to score every subject in a directory

Subjects are JSON or YAML mappings of extracted page signals. Without --rules
or --rules-dir the embedded default rule set is used.

Examples:
  # Score one page extract with the embedded rules
  aeo-score-service evaluate --subject site.json

  # Premium-tier report with JSON and HTML outputs
  aeo-score-service evaluate \
    --subject site.json --tier premium \
    --output json,html \
    --json-file report.json --html-file report.html

  # Batch-score a crawl output directory against custom rules
  aeo-score-service evaluate \
    --subject-dir ./crawl/pages/ \
    --rules rulesets/dental.yaml \
    --min-score 75

  # Pull rule sets from S3 and archive the results back
  aeo-score-service evaluate \
    --subject site.json \
    --s3-rules --s3-upload --s3-bucket my-bucket --s3-prefix aeo`,
	Run: func(cmd *cobra.Command, args []string) {
		runEvaluate()
	},
}

func init() {
	// Rule set selection
	evaluateCmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "Rule set YAML file (default: embedded aeo-default)")
	evaluateCmd.Flags().StringVar(&rulesDir, "rules-dir", "", "Directory of rule set YAML files")
	evaluateCmd.Flags().StringVar(&ruleSetName, "rule-set", "", "Rule set name to evaluate with (when multiple are loaded)")
	evaluateCmd.Flags().StringVarP(&tierName, "tier", "t", "free", "Report tier: free or premium")

	// Output
	evaluateCmd.Flags().StringVarP(&outputFormats, "output", "o", "text", "Output formats (comma-separated): text,json,html")
	evaluateCmd.Flags().StringVar(&jsonFile, "json-file", "", "JSON output file path")
	evaluateCmd.Flags().StringVar(&htmlFile, "html-file", "", "HTML output file path (directory in batch mode)")
	evaluateCmd.Flags().StringVar(&errorsFile, "errors-file", "", "Write subject load errors to this file")

	// Single subject mode
	evaluateCmd.Flags().StringVarP(&subjectFile, "subject", "s", "", "Evaluate a single subject file")

	// Batch mode
	evaluateCmd.Flags().StringVarP(&subjectDir, "subject-dir", "d", "", "Evaluate every subject in a directory")
	evaluateCmd.Flags().IntVar(&minScore, "min-score", 0, "Minimum score threshold (warn about subjects below this)")

	// S3 mode
	evaluateCmd.Flags().BoolVar(&s3Rules, "s3-rules", false, "Download rule sets from S3 before evaluating")
	evaluateCmd.Flags().BoolVar(&s3Upload, "s3-upload", false, "Upload evaluation results to S3")
	evaluateCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name (or use S3_BUCKET env var)")
	evaluateCmd.Flags().StringVar(&s3Prefix, "s3-prefix", "", "S3 key prefix/path (or use S3_PREFIX env var)")
	evaluateCmd.Flags().StringVar(&s3Region, "s3-region", "", "AWS region (or use AWS_REGION env var)")
	evaluateCmd.Flags().StringVar(&s3RunID, "s3-run-id", "", "Run ID for the S3 archive (default: auto-generated)")
}

func runEvaluate() {
	if s3Rules {
		downloadedDir, err := storage.DownloadRuleSets(storage.RuleSetDownloadConfig{
			Bucket: resolveS3Bucket(),
			Prefix: resolveS3Prefix(),
			Region: resolveS3Region(),
		})
		if err != nil {
			log.Fatalf("Error: Failed to download rule sets from S3: %v", err)
		}
		defer os.RemoveAll(downloadedDir)
		rulesDir = downloadedDir
	}

	if subjectFile != "" && subjectDir != "" {
		log.Fatal("Error: Cannot specify both --subject and --subject-dir. Choose one mode.")
	}
	if subjectFile == "" && subjectDir == "" {
		log.Fatal("Error: Must specify either --subject (single) or --subject-dir (batch)")
	}

	formats := parseOutputFormats(outputFormats)
	for _, format := range formats {
		switch format {
		case "text", "json", "html":
		default:
			log.Fatalf("Error: Unknown output format: %s. Valid formats: text, json, html", format)
		}
	}

	tier := parseTier(tierName)
	store := loadRuleSets()
	rs := selectRuleSet(store)
	engine := rules.NewEngine(store)

	if subjectFile != "" {
		runSingleEvaluation(engine, rs, tier, formats)
	} else {
		runBatchEvaluation(engine, rs, tier, formats)
	}
}

func loadRuleSets() *rules.Store {
	store := rules.NewStore()

	switch {
	case rulesDir != "":
		loaded, err := store.LoadRuleSetsFromDirectory(rulesDir)
		if err != nil {
			log.Fatalf("Error loading rule sets from %s: %v", rulesDir, err)
		}
		if len(loaded) == 0 {
			log.Fatalf("Error: No valid rule set files found in %s", rulesDir)
		}
	case rulesFile != "":
		if _, err := store.LoadRuleSet(rulesFile); err != nil {
			log.Fatalf("Error loading rule set %s: %v", rulesFile, err)
		}
	default:
		if _, err := store.LoadDefaultRuleSet(); err != nil {
			log.Fatalf("Error loading embedded rule set: %v", err)
		}
	}

	return store
}

func selectRuleSet(store *rules.Store) *rules.RuleSet {
	if ruleSetName != "" {
		rs, ok := store.GetRuleSet(ruleSetName)
		if !ok {
			log.Fatalf("Error: Rule set %q is not loaded (loaded: %s)", ruleSetName, loadedNames(store))
		}
		return rs
	}

	sets := store.LoadedRuleSets()
	if len(sets) == 1 {
		return sets[0]
	}
	log.Fatalf("Error: %d rule sets loaded, disambiguate with --rule-set (loaded: %s)", len(sets), loadedNames(store))
	return nil
}

func loadedNames(store *rules.Store) string {
	var names []string
	for _, rs := range store.LoadedRuleSets() {
		names = append(names, rs.Meta.Name)
	}
	return strings.Join(names, ", ")
}

func parseTier(name string) rules.Tier {
	switch name {
	case "free":
		return rules.TierFree
	case "premium":
		return rules.TierPremium
	default:
		log.Fatalf("Error: Unknown tier %q. Valid tiers: free, premium", name)
		return rules.TierFree
	}
}

// parseOutputFormats parses comma-separated output formats
func parseOutputFormats(formats string) []string {
	if formats == "" {
		return []string{"text"}
	}

	parts := strings.Split(formats, ",")
	var result []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func hasFormat(formats []string, format string) bool {
	for _, f := range formats {
		if f == format {
			return true
		}
	}
	return false
}

func runSingleEvaluation(engine *rules.Engine, rs *rules.RuleSet, tier rules.Tier, formats []string) {
	subject, err := subjects.Load(subjectFile)
	if err != nil {
		log.Fatalf("Error loading subject: %v", err)
	}
	name := strings.TrimSuffix(filepath.Base(subjectFile), filepath.Ext(subjectFile))

	report := engine.Evaluate(rs, subject, tier)

	if hasFormat(formats, "text") {
		formatters.Text(name, report)
	}
	if hasFormat(formats, "json") {
		if jsonFile != "" {
			writeJSONFile(jsonFile, formatters.OutputData{SubjectName: name, Report: report})
		} else {
			formatters.JSON(name, report)
		}
	}
	if hasFormat(formats, "html") {
		formatters.HTML(name, report, htmlFile)
	}

	if minScore > 0 && report.OverallScore < minScore {
		fmt.Printf("\nWARNING: %s scored %d, below the threshold of %d\n", name, report.OverallScore, minScore)
	}

	if s3Upload {
		uploadResults(report, name, 1, float64(report.OverallScore))
	}
}

func runBatchEvaluation(engine *rules.Engine, rs *rules.RuleSet, tier rules.Tier, formats []string) {
	loader := subjects.NewLoader()
	loaded, loadErrs, err := loader.LoadDirectory(subjectDir)
	if err != nil {
		log.Fatalf("Error reading subject directory: %v", err)
	}
	for _, rec := range loadErrs {
		log.Printf("WARNING: skipping subject %s: %s", rec.Path, rec.Error)
	}
	if errorsFile != "" && len(loadErrs) > 0 {
		if err := subjects.WriteErrorsToFile(errorsFile, loadErrs); err != nil {
			log.Printf("WARNING: failed to write errors file: %v", err)
		}
	}
	if len(loaded) == 0 {
		log.Fatalf("Error: No valid subject files found in %s", subjectDir)
	}

	batch := BatchReport{
		Timestamp: time.Now().Format(time.RFC3339),
		RuleSet:   rs.Meta.Name,
		Tier:      string(tier),
	}
	var reports []*rules.Report
	for _, ns := range loaded {
		report := engine.Evaluate(rs, ns.Subject, tier)
		reports = append(reports, report)
		batch.Results = append(batch.Results, SubjectResult{
			SubjectName: ns.Name,
			SubjectPath: ns.Path,
			Report:      report,
		})
	}

	stats := rules.ComputeStats(reports)
	batch.TotalSubjects = stats.TotalReports
	batch.AverageScore = stats.AverageScore

	if hasFormat(formats, "text") {
		for _, result := range batch.Results {
			formatters.Text(result.SubjectName, result.Report)
			fmt.Println()
		}
		formatters.Summary(stats)
	}
	if hasFormat(formats, "json") {
		if jsonFile != "" {
			writeJSONFile(jsonFile, batch)
		} else {
			data, err := json.MarshalIndent(batch, "", "  ")
			if err != nil {
				log.Fatalf("Error marshaling batch report: %v", err)
			}
			fmt.Println(string(data))
		}
	}
	if hasFormat(formats, "html") {
		if htmlFile == "" {
			log.Fatal("Error: --html-file (directory) is required for HTML output in batch mode")
		}
		if err := os.MkdirAll(htmlFile, 0755); err != nil {
			log.Fatalf("Error creating HTML output directory: %v", err)
		}
		for _, result := range batch.Results {
			formatters.HTML(result.SubjectName, result.Report, filepath.Join(htmlFile, result.SubjectName+".html"))
		}
	}

	if minScore > 0 {
		for _, result := range batch.Results {
			if result.Report.OverallScore < minScore {
				fmt.Printf("WARNING: %s scored %d, below the threshold of %d\n",
					result.SubjectName, result.Report.OverallScore, minScore)
			}
		}
	}

	if s3Upload {
		uploadResults(reports[0], "", len(reports), stats.AverageScore)
	}
}

func uploadResults(report *rules.Report, subjectName string, totalReports int, averageScore float64) {
	manifest := &storage.ReportManifest{
		SubjectName:  subjectName,
		RuleSet:      report.RuleSet,
		Tier:         string(report.Tier),
		OverallScore: report.OverallScore,
		Grade:        report.Grade,
		TotalReports: totalReports,
		AverageScore: averageScore,
	}

	err := storage.UploadReportBundle(storage.ReportUploadConfig{
		Bucket:   resolveS3Bucket(),
		Prefix:   resolveS3Prefix(),
		Region:   resolveS3Region(),
		RunID:    s3RunID,
		JSONFile: jsonFile,
		HTMLFile: singleHTMLFile(),
		Manifest: manifest,
	})
	if err != nil {
		log.Fatalf("Error: Failed to upload results to S3: %v", err)
	}
}

// singleHTMLFile returns the HTML path only when it names one file; batch
// mode writes a directory, which the bundle uploader does not take
func singleHTMLFile() string {
	if htmlFile == "" {
		return ""
	}
	if info, err := os.Stat(htmlFile); err == nil && info.IsDir() {
		return ""
	}
	return htmlFile
}

func resolveS3Bucket() string {
	if s3Bucket != "" {
		return s3Bucket
	}
	return os.Getenv("S3_BUCKET")
}

func resolveS3Prefix() string {
	if s3Prefix != "" {
		return s3Prefix
	}
	return os.Getenv("S3_PREFIX")
}

func resolveS3Region() string {
	if s3Region != "" {
		return s3Region
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		return region
	}
	return "us-east-1"
}

func writeJSONFile(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling JSON: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing JSON file %s: %v", path, err)
	}
	fmt.Printf("JSON report written: %s\n", path)
}

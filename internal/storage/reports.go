package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ReportUploadConfig contains configuration for archiving an evaluation run
type ReportUploadConfig struct {
	Bucket   string
	Prefix   string
	Region   string
	RunID    string
	JSONFile string
	HTMLFile string
	Manifest *ReportManifest
}

// RuleSetDownloadConfig contains configuration for syncing rule sets from S3
type RuleSetDownloadConfig struct {
	Bucket string
	Prefix string
	Region string
}

// ReportManifest contains metadata about an archived evaluation run
type ReportManifest struct {
	Timestamp    string  `json:"timestamp"`
	RunID        string  `json:"run_id"`
	SubjectName  string  `json:"subject_name,omitempty"`
	RuleSet      string  `json:"rule_set"`
	Tier         string  `json:"tier"`
	OverallScore int     `json:"overall_score"`
	Grade        string  `json:"grade"`
	TotalReports int     `json:"total_reports,omitempty"`
	AverageScore float64 `json:"average_score,omitempty"`
	Files        struct {
		JSON     string `json:"json,omitempty"`
		HTML     string `json:"html,omitempty"`
		Manifest string `json:"manifest"`
	} `json:"files"`
}

// UploadReportBundle archives the report files of one evaluation run under
// evaluations/<run_id>/ together with a manifest describing them.
func UploadReportBundle(config ReportUploadConfig) error {
	s3Client, err := NewS3Client(config.Bucket, config.Prefix, config.Region)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	runID := config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	s3Prefix := fmt.Sprintf("evaluations/%s", runID)

	// A caller-chosen run id can collide with an earlier archive
	if config.RunID != "" {
		exists, err := s3Client.FileExists(fmt.Sprintf("%s/manifest.json", s3Prefix))
		if err == nil && exists {
			fmt.Printf("Warning: run %s already archived, overwriting\n", runID)
		}
	}

	if config.Manifest == nil {
		config.Manifest = &ReportManifest{}
	}
	config.Manifest.RunID = runID
	if config.Manifest.Timestamp == "" {
		config.Manifest.Timestamp = time.Now().Format(time.RFC3339)
	}

	if config.JSONFile != "" {
		s3Key := fmt.Sprintf("%s/report.json", s3Prefix)
		if err := s3Client.UploadFile(config.JSONFile, s3Key); err != nil {
			return fmt.Errorf("failed to upload JSON report: %w", err)
		}
		config.Manifest.Files.JSON = s3Key
		fmt.Printf("Uploaded JSON report to %s\n", s3Client.GetS3URI(s3Key))
	}

	if config.HTMLFile != "" {
		s3Key := fmt.Sprintf("%s/report.html", s3Prefix)
		if err := s3Client.UploadFile(config.HTMLFile, s3Key); err != nil {
			return fmt.Errorf("failed to upload HTML report: %w", err)
		}
		config.Manifest.Files.HTML = s3Key
		fmt.Printf("Uploaded HTML report to %s\n", s3Client.GetS3URI(s3Key))
	}

	manifestS3Key := fmt.Sprintf("%s/manifest.json", s3Prefix)
	config.Manifest.Files.Manifest = manifestS3Key
	manifestData, err := json.MarshalIndent(config.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := s3Client.UploadContent(manifestData, manifestS3Key); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	fmt.Printf("Uploaded manifest to %s\n", s3Client.GetS3URI(manifestS3Key))

	fmt.Printf("\nEvaluation archive: s3://%s/%s/\n", config.Bucket, s3Prefix)
	fmt.Printf("  Run ID: %s\n", runID)
	fmt.Printf("  Rule Set: %s\n", config.Manifest.RuleSet)
	fmt.Printf("  Score: %d (Grade %s)\n", config.Manifest.OverallScore, config.Manifest.Grade)

	return nil
}

// DownloadRuleSets downloads rule-set files from S3 into a temp directory
// and returns its path. The caller owns cleanup of the directory.
func DownloadRuleSets(config RuleSetDownloadConfig) (string, error) {
	s3Client, err := NewS3Client(config.Bucket, config.Prefix, config.Region)
	if err != nil {
		return "", fmt.Errorf("failed to create S3 client: %w", err)
	}

	fmt.Printf("Downloading rule sets from s3://%s/%s\n", config.Bucket, config.Prefix)

	// The client is already scoped to config.Prefix, so the directory
	// download takes no sub-prefix; passing config.Prefix again would
	// double it in the listing key.
	keys, err := s3Client.ListFiles("")
	if err != nil {
		return "", fmt.Errorf("failed to list rule sets: %w", err)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no rule set files found in s3://%s/%s", config.Bucket, config.Prefix)
	}

	tmpDir, err := os.MkdirTemp("", "aeo-rulesets-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	downloadedFiles, err := s3Client.DownloadDirectory("", tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("failed to download from S3: %w", err)
	}

	fmt.Printf("Downloaded %d rule set file(s)\n", len(downloadedFiles))
	return tmpDir, nil
}

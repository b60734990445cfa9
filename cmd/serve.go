package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"

	"aeo-score-service/internal/rules"
	"aeo-score-service/internal/server"
	"aeo-score-service/internal/storage"

	"github.com/spf13/cobra"
)

var (
	serveAddress  string
	serveRulesDir string
	serveRules    string
	serveRuleSet  string
	serveTier     string
	serveWatch    bool
	serveS3Rules  bool
	serveLogJSON  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP evaluation API",
	Long: `Run the HTTP evaluation API.

Endpoints:
  POST /v1/evaluate         - Evaluate a subject against a loaded rule set
  GET  /v1/rulesets         - List loaded rule sets
  GET  /v1/rulesets/{name}  - Inspect one rule set
  GET  /healthz             - Health check
  GET  /metrics             - Prometheus metrics
  GET  /                    - Dashboard

With --watch the rule-set directory is monitored and edits to rule files are
picked up without a restart.

Examples:
  # Serve the embedded default rule set
  aeo-score-service serve --address :8080

  # Serve a rule set directory with live reload
  aeo-score-service serve --rules-dir ./rulesets --watch

  # Pull rule sets from S3 at startup
  aeo-score-service serve --s3-rules --s3-bucket my-bucket --s3-prefix aeo/rulesets`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", ":8080", "Listen address (or use LISTEN_ADDRESS env var)")
	serveCmd.Flags().StringVar(&serveRulesDir, "rules-dir", "", "Directory of rule set YAML files")
	serveCmd.Flags().StringVarP(&serveRules, "rules", "r", "", "Single rule set YAML file")
	serveCmd.Flags().StringVar(&serveRuleSet, "default-rule-set", "aeo-default", "Rule set used when requests name none")
	serveCmd.Flags().StringVar(&serveTier, "default-tier", "free", "Tier used when requests name none: free or premium")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload rule sets when files in --rules-dir change")
	serveCmd.Flags().BoolVar(&serveS3Rules, "s3-rules", false, "Download rule sets from S3 at startup")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "Emit structured logs as JSON")

	serveCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name (or use S3_BUCKET env var)")
	serveCmd.Flags().StringVar(&s3Prefix, "s3-prefix", "", "S3 key prefix/path (or use S3_PREFIX env var)")
	serveCmd.Flags().StringVar(&s3Region, "s3-region", "", "AWS region (or use AWS_REGION env var)")
}

func runServe() {
	if serveLogJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	if addr := os.Getenv("LISTEN_ADDRESS"); addr != "" && serveAddress == ":8080" {
		serveAddress = addr
	}

	store := rules.NewStore()

	if serveS3Rules {
		downloadedDir, err := storage.DownloadRuleSets(storage.RuleSetDownloadConfig{
			Bucket: resolveS3Bucket(),
			Prefix: resolveS3Prefix(),
			Region: resolveS3Region(),
		})
		if err != nil {
			log.Fatalf("Error: Failed to download rule sets from S3: %v", err)
		}
		defer os.RemoveAll(downloadedDir)
		serveRulesDir = downloadedDir
	}

	switch {
	case serveRulesDir != "":
		loaded, err := store.LoadRuleSetsFromDirectory(serveRulesDir)
		if err != nil {
			log.Fatalf("Error loading rule sets from %s: %v", serveRulesDir, err)
		}
		if len(loaded) == 0 {
			log.Fatalf("Error: No valid rule set files found in %s", serveRulesDir)
		}
		slog.Info("loaded rule sets", "count", len(loaded), "dir", serveRulesDir)
	case serveRules != "":
		rs, err := store.LoadRuleSet(serveRules)
		if err != nil {
			log.Fatalf("Error loading rule set %s: %v", serveRules, err)
		}
		slog.Info("loaded rule set", "name", rs.Meta.Name, "version", rs.Meta.Version)
	default:
		if _, err := store.LoadDefaultRuleSet(); err != nil {
			log.Fatalf("Error loading embedded rule set: %v", err)
		}
		slog.Info("loaded embedded default rule set")
	}

	cfg := server.DefaultConfig()
	cfg.ListenAddress = serveAddress
	cfg.DefaultRuleSet = serveRuleSet
	cfg.DefaultTier = parseTier(serveTier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if serveWatch {
		if serveRulesDir == "" {
			log.Fatal("Error: --watch requires --rules-dir")
		}
		go func() {
			if err := store.Watch(ctx, serveRulesDir, rules.DefaultDebounce); err != nil && err != context.Canceled {
				slog.Error("rule set watcher stopped", "error", err)
			}
		}()
		slog.Info("watching rule set directory", "dir", serveRulesDir, "debounce", rules.DefaultDebounce.String())
	}

	srv := server.NewServer(cfg, store)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

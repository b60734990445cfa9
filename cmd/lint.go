package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"aeo-score-service/internal/rules"

	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:   "lint [file-or-directory...]",
	Short: "Validate rule set files without evaluating anything",
	Long: `Validate rule set YAML files against the rule set schema.

Every structural violation is reported at once: unknown operators, payloads
that do not match their operator, duplicate rule ids, inverted ranges and
regex patterns that do not compile. With no arguments the embedded default
rule set is checked.

Examples:
  # Lint one rule set
  aeo-score-service lint rulesets/aeo.yaml

  # Lint every rule set in a directory
  aeo-score-service lint rulesets/

  # Verify the embedded default
  aeo-score-service lint`,
	Run: func(cmd *cobra.Command, args []string) {
		runLint(args)
	},
}

func runLint(args []string) {
	store := rules.NewStore()

	if len(args) == 0 {
		rs, err := store.LoadDefaultRuleSet()
		if err != nil {
			log.Fatalf("Embedded rule set is invalid: %v", err)
		}
		fmt.Printf("OK  %s v%s (embedded, %d categories)\n", rs.Meta.Name, rs.Meta.Version, len(rs.Categories))
		return
	}

	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			log.Fatalf("Error reading %s: %v", arg, err)
		}
		for _, entry := range entries {
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}

	if len(paths) == 0 {
		log.Fatal("Error: No rule set files to lint")
	}

	failed := 0
	for _, path := range paths {
		rs, err := store.LoadRuleSet(path)
		if err == nil {
			ruleCount := 0
			for _, cat := range rs.Categories {
				ruleCount += len(cat.Rules)
			}
			fmt.Printf("OK  %s: %s v%s (%d categories, %d rules)\n",
				path, rs.Meta.Name, rs.Meta.Version, len(rs.Categories), ruleCount)
			continue
		}

		failed++
		var se *rules.SchemaError
		var pe *rules.ParseError
		switch {
		case errors.As(err, &se):
			fmt.Printf("FAIL %s: %d violation(s)\n", path, len(se.Violations))
			for _, v := range se.Violations {
				fmt.Printf("     %s: %s\n", v.Path, v.Message)
			}
		case errors.As(err, &pe):
			fmt.Printf("FAIL %s: malformed YAML: %v\n", path, pe.Cause)
		default:
			fmt.Printf("FAIL %s: %v\n", path, err)
		}
	}

	fmt.Printf("\n%d file(s) checked, %d failed\n", len(paths), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

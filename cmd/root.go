package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aeo-score-service",
	Short: "Evaluate website readiness for AI answer engines with declarative rules",
	Long: `AEO Score Service - A rule-driven tool for scoring Answer Engine Optimization quality.

Rule sets are declarative YAML documents: categories of weighted rules whose
conditions are checked against extracted page data (schema markup, content
structure, snippet metadata). Each evaluation produces a 0-100 score, a letter
grade and tier-dependent detail.

Commands:
  evaluate    - Score one subject file or a directory of subjects
  lint        - Validate rule set files without evaluating anything
  serve       - Run the HTTP evaluation API with metrics and live reload
  completion  - Generate shell completion scripts

Workflow:
  1. Author rules: write or adjust a rule set YAML (see rulesets/)
  2. Check them:   aeo-score-service lint --rules rulesets/aeo.yaml
  3. Evaluate:     aeo-score-service evaluate --subject site.json --tier premium`,
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for aeo-score-service.

To load completions:

Bash:
  $ source <(aeo-score-service completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ aeo-score-service completion bash > /etc/bash_completion.d/aeo-score-service
  # macOS:
  $ aeo-score-service completion bash > $(brew --prefix)/etc/bash_completion.d/aeo-score-service

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ aeo-score-service completion zsh > "${fpath[1]}/_aeo-score-service"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ aeo-score-service completion fish | source

  # To load completions for each session, execute once:
  $ aeo-score-service completion fish > ~/.config/fish/completions/aeo-score-service.fish

PowerShell:
  PS> aeo-score-service completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> aeo-score-service completion powershell > aeo-score-service.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion: %v\n", err)
			os.Exit(1)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(completionCmd)
}

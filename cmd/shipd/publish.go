package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/shipd/internal/engine"
	"github.com/fyrsmithlabs/shipd/internal/orchestrator"
)

var commitMessage string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Classify pending changes and publish them with the safe-push protocol",
	Long: `Capture the working tree's pending modifications, classify them, and when
they qualify for a direct commit, commit and push them. Concurrent remote
history is integrated automatically; the push is always fast-forward.

Examples:
  # Publish with a message
  shipd publish -m "update install docs"

  # Publish a different working copy
  shipd publish -C ~/src/notes -m "sync notes"`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message (required)")
	_ = publishCmd.MarkFlagRequired("message")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	root, err := repoRoot()
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(cfg, logger, root)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Sync.NetworkTimeout)
	defer cancel()

	res, err := orch.PublishPending(ctx, commitMessage)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(res)
	}
	renderResult(res)
	if res.Routed() {
		return nil
	}
	if res.Attempt.Failed() {
		return fmt.Errorf("publish did not complete: %s", res.Attempt.Failure)
	}
	return nil
}

// renderResult prints the routing decision and, when present, the attempt's
// step log.
func renderResult(res *orchestrator.Result) {
	fmt.Printf("verdict: %s (%s)\n", res.Decision.Verdict, res.Decision.Rule)
	if res.Decision.Reason != "" {
		fmt.Printf("reason:  %s\n", res.Decision.Reason)
	}
	if res.Routed() {
		fmt.Println("\nthis change set requires review; nothing was committed")
		return
	}

	a := res.Attempt
	fmt.Println()
	for _, step := range a.Steps {
		line := fmt.Sprintf("  %-10s %s", step.Name, step.Status)
		if step.Detail != "" {
			line += "  " + step.Detail
		}
		fmt.Println(line)
	}
	fmt.Printf("\noutcome: %s\n", a.Outcome)
	if a.CommitHash != "" {
		fmt.Printf("commit:  %s\n", a.CommitHash)
	}
	if a.Failed() {
		fmt.Printf("failure: %s\n", a.Failure)
		if a.Reason != "" {
			fmt.Printf("reason:  %s\n", a.Reason)
		}
	}
	if a.Conflicts != nil {
		fmt.Fprintln(os.Stderr, "\nunresolved conflicts:")
		for _, p := range a.Conflicts.Paths() {
			fmt.Fprintf(os.Stderr, "  %s\n", p)
		}
	}
	if a.Outcome == engine.ManualInterventionRequired {
		fmt.Fprintln(os.Stderr, "\nrun 'shipd advise' for recovery steps")
	}
}

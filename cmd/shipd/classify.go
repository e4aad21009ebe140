package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/shipd/internal/changeset"
	"github.com/fyrsmithlabs/shipd/internal/classifier"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Report how the pending changes would be routed, without committing",
	Long: `Capture the working tree's pending modifications and print the routing
verdict. Nothing is committed or pushed.

Examples:
  # Classify the current repository
  shipd classify

  # Machine-readable output
  shipd classify --json`,
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	root, err := repoRoot()
	if err != nil {
		return err
	}

	cs, err := changeset.Capture(root)
	if err != nil {
		return err
	}
	decision := classifier.New(cfg.Classifier).Classify(cs)

	if jsonOutput {
		return printJSON(struct {
			Decision classifier.RoutingDecision `json:"decision"`
			Files    []changeset.FileChange     `json:"files"`
		}{decision, cs.Files})
	}

	fmt.Printf("verdict: %s (%s)\n", decision.Verdict, decision.Rule)
	if decision.Reason != "" {
		fmt.Printf("reason:  %s\n", decision.Reason)
	}
	if cs.Empty() {
		fmt.Println("\nworking tree is clean")
		return nil
	}
	fmt.Printf("\n%d file(s), %d line(s) changed:\n", len(cs.Files), cs.TotalChanged())
	for _, fc := range cs.Files {
		fmt.Printf("  %-10s %-12s %s (+%d/-%d)\n", fc.Kind, fc.Category, fc.Path, fc.Added, fc.Removed)
	}
	return nil
}

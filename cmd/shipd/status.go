package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/shipd/internal/config"
	"github.com/fyrsmithlabs/shipd/internal/recovery"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the repository's synchronization state",
	Long: `Inspect the working copy: divergence from the remote, dirty files, stash
depth, unfinished merges, detached HEAD. Read-only.`,
	RunE: runStatus,
}

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Suggest recovery steps for an unsafe repository state",
	Long: `Inspect the working copy and print an ordered remediation plan for any
anomaly that would block or endanger publishing. The plan is advice only;
nothing is executed.`,
	RunE: runAdvise,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := inspect(cfg)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(st)
	}
	renderState(st)
	return nil
}

func runAdvise(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := inspect(cfg)
	if err != nil {
		return err
	}
	plan := recovery.Advise(st)

	if jsonOutput {
		return printJSON(struct {
			State *state.RepositoryState `json:"state"`
			Plan  *recovery.Plan         `json:"plan"`
		}{st, plan})
	}

	if plan.Empty() {
		fmt.Println("repository is healthy; nothing to do")
		return nil
	}
	for _, action := range plan.Actions {
		fmt.Printf("[%s] %s\n", action.Severity, action.Summary)
		if action.Command != "" {
			fmt.Printf("    %s\n", action.Command)
		}
	}
	if plan.Blocked() {
		fmt.Println("\npublishing is blocked until the conditions above are cleared")
	}
	return nil
}

func inspect(cfg *config.Config) (*state.RepositoryState, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	return newInspector(cfg, root).Inspect()
}

func renderState(st *state.RepositoryState) {
	branch := st.Branch
	if st.DetachedHead {
		branch = "(detached)"
	}
	fmt.Printf("branch:  %s\n", branch)
	fmt.Printf("local:   %s\n", short(string(st.LocalHead)))
	if st.RemoteHead != "" {
		fmt.Printf("remote:  %s\n", short(string(st.RemoteHead)))
	} else {
		fmt.Println("remote:  (no remote-tracking ref)")
	}
	fmt.Printf("ahead %d, behind %d\n", st.Ahead, st.Behind)
	if len(st.DirtyFiles) > 0 {
		fmt.Printf("dirty files: %d\n", len(st.DirtyFiles))
	}
	if st.StashDepth > 0 {
		fmt.Printf("stash entries: %d\n", st.StashDepth)
	}
	if st.MergeInProgress {
		fmt.Println("merge in progress")
	}
	if v := st.Violations(); len(v) > 0 {
		fmt.Println("\npublishing blocked:")
		for _, reason := range v {
			fmt.Printf("  %s\n", reason)
		}
	}
}

// short abbreviates a commit hash for display.
func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "(none)"
	}
	return h
}

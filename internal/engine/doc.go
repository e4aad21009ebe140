// Package engine runs the safe-push protocol: a strictly ordered sequence
// of preserve, fetch, stage, normalize, commit, integrate and publish steps
// that lands a change set on the remote without merge commits and without
// ever force-pushing.
//
// # Protocol
//
// Each step has a defined retry and failure policy:
//
//   - Preserve snapshots pre-existing uncommitted state; an abort before the
//     commit step restores it exactly.
//   - Fetch retries once with backoff, then aborts.
//   - Stage failures are fatal.
//   - Normalize is best effort and never fails the attempt.
//   - Commit runs registered pre-commit hooks; a hook that rewrites files
//     triggers a single re-stage and retry, a hook that rejects aborts the
//     attempt with the hook's message surfaced verbatim.
//   - Integrate three-way merges concurrent remote history into a fresh
//     commit built on the remote head, so the publish step is always a
//     plain fast-forward. Uncommitted content outside the change set is put
//     back from the preserve snapshot after the tree rebuild.
//   - Publish retries from integrate when the remote advances mid-push,
//     bounded to three cycles.
//
// Attempts against the same working copy are serialized with a per-path
// lock. Independent clones publish concurrently and race only at the
// remote, which the bounded integrate/publish loop tolerates.
//
// # Usage
//
//	git, err := gitops.Open(root, gitops.Options{})
//	if err != nil {
//	    return err
//	}
//	eng := engine.New(git, root, engine.Options{Hooks: reg, Logger: logger})
//	attempt := eng.Publish(ctx, cs, "checkpoint: update docs")
//	if attempt.Failed() {
//	    // attempt.Failure and attempt.Reason say why; attempt.Conflicts
//	    // lists unresolved paths when the resolver gave up.
//	}
package engine

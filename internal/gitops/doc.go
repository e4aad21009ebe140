// Package gitops wraps the subordinate version-control engine behind a
// narrow interface.
//
// The sync protocol drives git through this package only: fetch, stage,
// commit, push, merge-base, tree materialization, and baseline snapshots.
// The implementation is go-git; nothing here shells out to a git binary or
// speaks a network wire protocol directly. Callers that need deterministic
// behavior in tests substitute their own Engine.
package gitops

// Package resolver merges a local commit onto a divergent remote head.
//
// The resolver is pure: it operates on materialized file sets (base, local,
// remote) and produces either a merged file set or a conflict report. Paths
// changed on only one side merge trivially. Content changed on both sides is
// merged line-region by line-region; overlapping regions resolve in favor of
// the local side, because the publishing actor's intent is authoritative for
// its own change set and the remote version stays retrievable from history.
// Deletions conflicting with modifications keep the modification. Renames
// colliding with renames are never auto-resolved: there is no safe default,
// so they surface as unresolved conflicts.
//
// The resolver never rewrites published history. Its output is a new tree
// for an integration commit; turning that tree into a commit is the sync
// engine's job.
package resolver

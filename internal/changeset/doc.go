// Package changeset captures and models the set of file-level modifications
// an actor wants to publish.
//
// A ChangeSet is an immutable snapshot: it is captured once from the working
// tree and never updated in place. A new publish attempt re-captures. Every
// file in a ChangeSet carries a category tag (production, test, documentation,
// script, dependency-manifest, ci-config) used by the classifier to route the
// change between direct commit and review.
package changeset

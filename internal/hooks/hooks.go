// Package hooks provides pre-commit validation for publish attempts.
//
// Hooks run after staging and before the commit is created. A hook may
// reject the commit by returning an error, or rewrite staged files and
// report them as mutated so the caller can re-stage and retry.
package hooks

import (
	"context"
	"fmt"
)

// Request carries what a pre-commit hook gets to inspect.
type Request struct {
	// Root is the working copy root.
	Root string

	// Paths are the staged paths, sorted.
	Paths []string

	// Message is the commit message about to be used.
	Message string
}

// Result reports what a hook did to the working tree.
type Result struct {
	// Mutated lists paths the hook rewrote. The caller re-stages them
	// before committing.
	Mutated []string
}

// Hook is one pre-commit validation.
type Hook interface {
	// Name identifies the hook in errors and logs.
	Name() string

	// Run inspects or rewrites the staged files. Returning an error
	// rejects the commit.
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a plain function to the Hook interface.
type Func struct {
	HookName string
	Fn       func(ctx context.Context, req *Request) (*Result, error)
}

func (f Func) Name() string { return f.HookName }

func (f Func) Run(ctx context.Context, req *Request) (*Result, error) {
	return f.Fn(ctx, req)
}

// Registry holds the registered pre-commit hooks in execution order.
type Registry struct {
	hooks []Hook
}

// NewRegistry creates a registry with the given hooks.
func NewRegistry(hooks ...Hook) *Registry {
	return &Registry{hooks: hooks}
}

// Register appends a hook. Hooks execute in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int { return len(r.hooks) }

// RunPreCommit executes every hook in order, stopping at the first
// rejection. The rejecting hook's error is wrapped with its name and
// otherwise passed through intact.
func (r *Registry) RunPreCommit(ctx context.Context, req *Request) (*Result, error) {
	combined := &Result{}
	for _, h := range r.hooks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := h.Run(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", h.Name(), err)
		}
		if res != nil {
			combined.Mutated = append(combined.Mutated, res.Mutated...)
		}
	}
	return combined, nil
}

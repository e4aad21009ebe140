package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shipd/internal/engine"
	"github.com/fyrsmithlabs/shipd/internal/recovery"
	"github.com/fyrsmithlabs/shipd/internal/state"
)

type publishInput struct {
	Message string `json:"message" jsonschema:"required,Commit message for the publish attempt"`
}

type publishOutput struct {
	Verdict    string        `json:"verdict" jsonschema:"Routing verdict: direct-commit or requires-review"`
	Rule       string        `json:"rule" jsonschema:"Identifier of the routing rule that matched"`
	Reason     string        `json:"reason,omitempty" jsonschema:"Why the change set routed or failed"`
	Outcome    string        `json:"outcome,omitempty" jsonschema:"Attempt outcome: published, aborted or manual-intervention-required"`
	Failure    string        `json:"failure,omitempty" jsonschema:"Failure class for non-published outcomes"`
	CommitHash string        `json:"commit_hash,omitempty" jsonschema:"Commit created by the attempt, when one exists"`
	Steps      []engine.Step `json:"steps,omitempty" jsonschema:"Ordered step log of the attempt"`
	Conflicts  []string      `json:"conflicts,omitempty" jsonschema:"Paths the resolver could not merge automatically"`
}

type classifyInput struct{}

type classifyOutput struct {
	Verdict    string `json:"verdict" jsonschema:"Routing verdict: direct-commit or requires-review"`
	Rule       string `json:"rule" jsonschema:"Identifier of the routing rule that matched"`
	Reason     string `json:"reason" jsonschema:"Human-readable justification"`
	Files      int    `json:"files" jsonschema:"Number of pending file changes"`
	TotalLines int    `json:"total_lines" jsonschema:"Total changed lines"`
}

type stateInput struct{}

type adviseInput struct{}

type adviseOutput struct {
	State *state.RepositoryState `json:"state" jsonschema:"Repository snapshot the plan was derived from"`
	Plan  *recovery.Plan         `json:"plan" jsonschema:"Ordered corrective actions, blocking conditions first"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repo_publish",
		Description: "Classify the pending change set and, when it qualifies for a direct commit, publish it with the safe-push protocol. Returns the routing decision and the full attempt step log. Never force-pushes.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args publishInput) (*mcp.CallToolResult, publishOutput, error) {
		return s.handlePublish(ctx, args)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "change_classify",
		Description: "Capture the working tree's pending modifications and report whether they qualify for a direct commit or require review. Read-only.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args classifyInput) (*mcp.CallToolResult, classifyOutput, error) {
		return s.handleClassify(ctx, args)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repo_state",
		Description: "Inspect the repository: divergence from the remote, dirty files, stash depth, unfinished merges, detached HEAD. Read-only.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args stateInput) (*mcp.CallToolResult, state.RepositoryState, error) {
		return s.handleState(ctx)
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "repo_advise",
		Description: "Inspect the repository and return an ordered remediation plan for any anomalies. The plan is advice only; nothing is executed.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args adviseInput) (*mcp.CallToolResult, adviseOutput, error) {
		return s.handleAdvise(ctx)
	})
}

func (s *Server) handlePublish(ctx context.Context, args publishInput) (*mcp.CallToolResult, publishOutput, error) {
	if args.Message == "" {
		return nil, publishOutput{}, fmt.Errorf("message is required")
	}

	res, err := s.orch.PublishPending(ctx, args.Message)
	if err != nil {
		return nil, publishOutput{}, err
	}

	out := publishOutput{
		Verdict: string(res.Decision.Verdict),
		Rule:    res.Decision.Rule,
		Reason:  res.Decision.Reason,
	}
	if res.Routed() {
		s.logger.Info("publish routed to review",
			zap.String("rule", res.Decision.Rule))
		return nil, out, nil
	}

	a := res.Attempt
	out.Outcome = string(a.Outcome)
	out.Failure = string(a.Failure)
	out.CommitHash = string(a.CommitHash)
	out.Steps = a.Steps
	if a.Reason != "" {
		out.Reason = a.Reason
	}
	if a.Conflicts != nil {
		out.Conflicts = a.Conflicts.Paths()
	}
	return nil, out, nil
}

func (s *Server) handleClassify(ctx context.Context, _ classifyInput) (*mcp.CallToolResult, classifyOutput, error) {
	cs, err := s.orch.Capture()
	if err != nil {
		return nil, classifyOutput{}, err
	}
	d := s.orch.Classify(cs)
	return nil, classifyOutput{
		Verdict:    string(d.Verdict),
		Rule:       d.Rule,
		Reason:     d.Reason,
		Files:      len(cs.Files),
		TotalLines: cs.TotalChanged(),
	}, nil
}

func (s *Server) handleState(ctx context.Context) (*mcp.CallToolResult, state.RepositoryState, error) {
	st, err := s.inspector.Inspect()
	if err != nil {
		return nil, state.RepositoryState{}, fmt.Errorf("inspecting repository: %w", err)
	}
	return nil, *st, nil
}

func (s *Server) handleAdvise(ctx context.Context) (*mcp.CallToolResult, adviseOutput, error) {
	st, err := s.inspector.Inspect()
	if err != nil {
		return nil, adviseOutput{}, fmt.Errorf("inspecting repository: %w", err)
	}
	return nil, adviseOutput{State: st, Plan: recovery.Advise(st)}, nil
}

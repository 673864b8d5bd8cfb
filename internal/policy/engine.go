// Package policy evaluates request policy decisions with OPA: which
// storage hosts attachments may be fetched from, and which tools a user
// may invoke.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from the given rego module content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.request_policy.decision"),
		rego.Module("request_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy and returns the decision string ("allow" or
// "deny").
func (e *Engine) Evaluate(ctx context.Context, input map[string]any) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "deny", nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "deny", nil
}

// AllowAttachmentHost reports whether attachments may be fetched from
// host. The allow-list comes from configuration and rides in as input so
// deployments can extend the policy without recompiling.
func (e *Engine) AllowAttachmentHost(ctx context.Context, host string, allowedHosts []string) (bool, error) {
	decision, err := e.Evaluate(ctx, map[string]any{
		"kind":          "attachment_host",
		"host":          host,
		"allowed_hosts": allowedHosts,
	})
	if err != nil {
		return false, err
	}
	return decision == "allow", nil
}

// AllowTool reports whether the user may invoke the named tool.
func (e *Engine) AllowTool(ctx context.Context, tool, userID string) (bool, error) {
	decision, err := e.Evaluate(ctx, map[string]any{
		"kind": "tool",
		"tool": tool,
		"user": userID,
	})
	if err != nil {
		return false, err
	}
	return decision == "allow", nil
}

// DefaultPolicy is the default policy content: attachments only from the
// configured hosts, every tool allowed unless explicitly blocked.
const DefaultPolicy = `
package request_policy

import rego.v1

default decision := "deny"

decision := "allow" if {
	input.kind == "attachment_host"
	input.host in input.allowed_hosts
}

decision := "allow" if {
	input.kind == "tool"
	not input.tool in blocked_tools
}

blocked_tools := set()
`

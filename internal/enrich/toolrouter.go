package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/citations"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/policy"
	"github.com/msf-usa/chatd/internal/tokenizer"
	"github.com/msf-usa/chatd/internal/tools"
)

// compositeTokenBudget caps the text handed to the routing classifier
// and to tools.
const compositeTokenBudget = 2000

// ToolRouter decides which tools the turn needs, runs them, and splices
// their deduplicated results into the conversation.
type ToolRouter struct {
	router   *tools.Router
	registry map[string]tools.Tool
	policy   *policy.Engine
	tokens   *tokenizer.Counter
}

// NewToolRouter creates the tool-routing enricher over the given tool set.
func NewToolRouter(router *tools.Router, toolSet []tools.Tool, eng *policy.Engine, tokens *tokenizer.Counter) *ToolRouter {
	registry := make(map[string]tools.Tool, len(toolSet))
	for _, t := range toolSet {
		registry[t.Type()] = t
	}
	return &ToolRouter{router: router, registry: registry, policy: eng, tokens: tokens}
}

// Name identifies the stage in metrics and error entries.
func (e *ToolRouter) Name() string { return "tool_router" }

// ShouldRun runs for the search modes that allow tool use. Agent turns
// bring their own tools.
func (e *ToolRouter) ShouldRun(c pipeline.Context) bool {
	if c.Strategy == domain.ExecutionAgent {
		return false
	}
	return c.SearchMode == domain.SearchModeIntelligent || c.SearchMode == domain.SearchModeAlways
}

// Run routes, executes and splices. Tool failures degrade the turn to an
// unenriched answer instead of failing it.
func (e *ToolRouter) Run(ctx context.Context, c pipeline.Context) (pipeline.Context, error) {
	composite := e.compositeText(c)
	if composite == "" {
		return c, nil
	}

	decisions, err := e.router.Route(ctx, composite, c.SearchMode == domain.SearchModeAlways)
	if err != nil {
		return c, fmt.Errorf("tool routing failed: %w", err)
	}
	if len(decisions) == 0 {
		return c, nil
	}

	var (
		resultText strings.Builder
		allCites   []domain.Citation
		executed   []string
	)
	for _, d := range decisions {
		tool, ok := e.registry[d.ToolType]
		if !ok {
			c.Log().Warn("router chose unregistered tool", zap.String("tool", d.ToolType))
			continue
		}
		allowed, err := e.policy.AllowTool(ctx, tool.Type(), c.User.ID)
		if err != nil {
			return c, fmt.Errorf("tool policy evaluation failed: %w", err)
		}
		if !allowed {
			c.Log().Warn("tool blocked by policy", zap.String("tool", tool.Type()))
			continue
		}

		// The tool sees only the derived query, never the conversation.
		result, err := tool.Execute(ctx, d.Query)
		if err != nil {
			c.Log().Warn("tool execution failed, continuing without it",
				zap.String("tool", tool.Type()), zap.Error(err))
			continue
		}
		if resultText.Len() > 0 {
			resultText.WriteString("\n\n")
		}
		resultText.WriteString(result.Text)
		allCites = append(allCites, result.Citations...)
		executed = append(executed, tool.Name())
	}
	if len(executed) == 0 {
		return c, nil
	}

	deduped, text := citations.Dedupe(allCites, resultText.String())

	note := fmt.Sprintf("Results from %s:\n\n%s", strings.Join(executed, ", "), text)
	if len(deduped) > 0 {
		note += "\n\nSources:\n" + legend(deduped)
	}
	note += "\n\nCite sources inline using bracketed numbers only, for example [1]. " +
		"Do not invent numbers beyond the listed sources."

	enriched := append(copyMessages(c.EnrichedOrRaw()), domain.TextMessage(domain.RoleSystem, note))
	c = c.WithEnriched(enriched).WithCitations(deduped...)
	return c.WithMetadata(pipeline.MetaProgress, "Searching for current information..."), nil
}

// compositeText is the latest user text plus the processed artifact
// digest, trimmed to the classifier budget.
func (e *ToolRouter) compositeText(c pipeline.Context) string {
	var parts []string
	if last := domain.LastOfRole(c.Messages, domain.RoleUser); last != nil {
		if text := last.Content.PlainText(); text != "" {
			parts = append(parts, text)
		}
	}
	if digest := processedDigest(c.Processed); digest != "" {
		parts = append(parts, digest)
	}
	return e.tokens.Truncate(strings.Join(parts, "\n\n"), compositeTokenBudget)
}

func legend(cites []domain.Citation) string {
	var b strings.Builder
	for _, c := range cites {
		fmt.Fprintf(&b, "[%d] %s", c.Number, c.Title)
		if c.URL != "" {
			fmt.Fprintf(&b, " - %s", c.URL)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

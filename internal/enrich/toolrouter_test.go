package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/policy"
	"github.com/msf-usa/chatd/internal/tokenizer"
	"github.com/msf-usa/chatd/internal/tools"
)

type fakeTool struct {
	queries []string
	result  *tools.Result
	err     error
}

func (f *fakeTool) Type() string { return tools.TypeWebSearch }
func (f *fakeTool) Name() string { return "Web Search" }
func (f *fakeTool) Execute(_ context.Context, query string) (*tools.Result, error) {
	f.queries = append(f.queries, query)
	return f.result, f.err
}

func newTestToolRouter(t *testing.T, tool tools.Tool, classify tools.ClassifyFunc) *ToolRouter {
	t.Helper()
	eng, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}
	return NewToolRouter(tools.NewRouter(classify), []tools.Tool{tool}, eng, tokenizer.New())
}

func searchContext(mode domain.SearchMode, question string) pipeline.Context {
	return pipeline.Context{
		User:       domain.User{ID: "u1"},
		SearchMode: mode,
		Messages:   []domain.Message{domain.TextMessage(domain.RoleUser, question)},
	}
}

func TestToolRouterShouldRun(t *testing.T) {
	e := newTestToolRouter(t, &fakeTool{}, nil)

	if e.ShouldRun(pipeline.Context{SearchMode: domain.SearchModeOff}) {
		t.Fatalf("off mode should not route")
	}
	if !e.ShouldRun(pipeline.Context{SearchMode: domain.SearchModeIntelligent}) {
		t.Fatalf("intelligent mode should route")
	}
	if !e.ShouldRun(pipeline.Context{SearchMode: domain.SearchModeAlways}) {
		t.Fatalf("always mode should route")
	}
	if e.ShouldRun(pipeline.Context{SearchMode: domain.SearchModeAlways, Strategy: domain.ExecutionAgent}) {
		t.Fatalf("agent turns bring their own tools")
	}
}

func TestToolRouterAlwaysModeSkipsClassifier(t *testing.T) {
	tool := &fakeTool{result: &tools.Result{
		Text:      "[1] Headline\nsnippet",
		Citations: []domain.Citation{{Number: 1, Title: "Headline", URL: "https://news"}},
	}}
	classify := func(_ context.Context, _, _ string) (string, error) {
		t.Fatalf("classifier must not run in always mode")
		return "", nil
	}
	e := newTestToolRouter(t, tool, classify)

	out, err := e.Run(context.Background(), searchContext(domain.SearchModeAlways, "latest news"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tool.queries) != 1 {
		t.Fatalf("tool not executed: %+v", tool.queries)
	}
	if got := out.Citations(); len(got) != 1 || got[0].URL != "https://news" {
		t.Fatalf("citations not spliced: %+v", got)
	}
	enriched := out.EnrichedOrRaw()
	last := enriched[len(enriched)-1]
	if last.Role != domain.RoleSystem || !strings.Contains(last.Content.Text, "Headline") {
		t.Fatalf("results not spliced as system note: %+v", last)
	}
	if !strings.Contains(last.Content.Text, "[1]") {
		t.Fatalf("source legend missing: %q", last.Content.Text)
	}
	if out.Metadata[pipeline.MetaProgress] == nil {
		t.Fatalf("progress hint not recorded")
	}
}

func TestToolRouterClassifierDerivedQuery(t *testing.T) {
	tool := &fakeTool{result: &tools.Result{Text: "[1] r", Citations: []domain.Citation{{Number: 1, Title: "r", URL: "https://r"}}}}
	classify := func(_ context.Context, _, _ string) (string, error) {
		return `{"web_search": true, "query": "go 1.25 release date"}`, nil
	}
	e := newTestToolRouter(t, tool, classify)

	if _, err := e.Run(context.Background(), searchContext(domain.SearchModeIntelligent, "when was go released?")); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tool.queries) != 1 || tool.queries[0] != "go 1.25 release date" {
		t.Fatalf("derived query not used: %+v", tool.queries)
	}
}

func TestToolRouterNoSearchNeeded(t *testing.T) {
	tool := &fakeTool{}
	classify := func(_ context.Context, _, _ string) (string, error) {
		return `{"web_search": false, "query": ""}`, nil
	}
	e := newTestToolRouter(t, tool, classify)

	out, err := e.Run(context.Background(), searchContext(domain.SearchModeIntelligent, "2+2?"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tool.queries) != 0 {
		t.Fatalf("tool ran without a decision")
	}
	if out.Enriched != nil {
		t.Fatalf("context enriched without results")
	}
}

func TestToolRouterToolFailureDegrades(t *testing.T) {
	tool := &fakeTool{err: errors.New("search down")}
	e := newTestToolRouter(t, tool, nil)

	out, err := e.Run(context.Background(), searchContext(domain.SearchModeAlways, "latest news"))
	if err != nil {
		t.Fatalf("tool failure should degrade, not fail: %v", err)
	}
	if out.Enriched != nil || len(out.Citations()) != 0 {
		t.Fatalf("failed tool left traces: %+v", out)
	}
}

func TestToolRouterDeduplicatesCitations(t *testing.T) {
	tool := &fakeTool{result: &tools.Result{
		Text: "a [1] b [2] c [3]",
		Citations: []domain.Citation{
			{Number: 1, Title: "Same", URL: "https://same"},
			{Number: 2, Title: "Other", URL: "https://other"},
			{Number: 3, Title: "Same dup", URL: "https://same"},
		},
	}}
	e := newTestToolRouter(t, tool, nil)

	out, err := e.Run(context.Background(), searchContext(domain.SearchModeAlways, "question"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := out.Citations()
	if len(got) != 2 {
		t.Fatalf("duplicates survived: %+v", got)
	}
	enriched := out.EnrichedOrRaw()
	note := enriched[len(enriched)-1].Content.Text
	if !strings.Contains(note, "a [1] b [2] c [1]") {
		t.Fatalf("markers not remapped in splice: %q", note)
	}
}

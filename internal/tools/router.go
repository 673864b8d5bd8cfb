package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const routerSystemPrompt = `You decide whether answering a user needs external tools.
Respond with JSON only, no prose: {"web_search": <bool>, "query": "<search query or empty>"}.
Set web_search true only when the answer needs current or external information.`

// ClassifyFunc is the LLM-backed classifier abstraction behind the
// routing policy: it answers a single system+user exchange with text.
type ClassifyFunc func(ctx context.Context, system, user string) (string, error)

// Decision names a tool the turn needs plus the derived query to hand it.
type Decision struct {
	ToolType string
	Query    string
}

// Router is the routing policy deciding which tools, if any, a turn
// needs.
type Router struct {
	classify ClassifyFunc
}

// NewRouter creates a router over the given classifier.
func NewRouter(classify ClassifyFunc) *Router {
	return &Router{classify: classify}
}

// Route returns the tool decisions for the composite turn text. When
// force is set the classifier is skipped and a web search is always
// issued with the text itself as the query.
func (r *Router) Route(ctx context.Context, composite string, force bool) ([]Decision, error) {
	if force {
		return []Decision{{ToolType: TypeWebSearch, Query: composite}}, nil
	}

	answer, err := r.classify(ctx, routerSystemPrompt, composite)
	if err != nil {
		return nil, fmt.Errorf("routing classifier failed: %w", err)
	}

	var parsed struct {
		WebSearch bool   `json:"web_search"`
		Query     string `json:"query"`
	}
	if err := json.Unmarshal([]byte(extractJSON(answer)), &parsed); err != nil {
		return nil, fmt.Errorf("routing classifier returned unparsable answer: %w", err)
	}
	if !parsed.WebSearch {
		return nil, nil
	}
	query := strings.TrimSpace(parsed.Query)
	if query == "" {
		query = composite
	}
	return []Decision{{ToolType: TypeWebSearch, Query: query}}, nil
}

// extractJSON trims any wrapping the model put around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

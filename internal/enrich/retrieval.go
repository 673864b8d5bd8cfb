// Package enrich contains the enricher stages that augment the
// conversation before execution: knowledge-base grounding, agent-mode
// promotion and tool routing.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
)

// Retrieval attaches knowledge-base grounding for bot-scoped turns. The
// search data source itself is applied at model-call time; this stage
// only records the configuration and instructs the model to stay
// grounded.
type Retrieval struct {
	endpoint       string
	topN           int
	semanticConfig string
	indexPrefix    string
}

// NewRetrieval creates the retrieval enricher.
func NewRetrieval(endpoint string, topN int, semanticConfig string) *Retrieval {
	return &Retrieval{
		endpoint:       endpoint,
		topN:           topN,
		semanticConfig: semanticConfig,
		indexPrefix:    "bot-",
	}
}

// Name identifies the stage in metrics and error entries.
func (e *Retrieval) Name() string { return "retrieval_enricher" }

// ShouldRun runs only for turns addressed to a configured bot.
func (e *Retrieval) ShouldRun(c pipeline.Context) bool {
	return c.BotID != "" && e.endpoint != ""
}

// Run records the retrieval configuration for the bot's index and adds
// the grounding instruction.
func (e *Retrieval) Run(_ context.Context, c pipeline.Context) (pipeline.Context, error) {
	cfg := domain.RetrievalConfig{
		Endpoint:       e.endpoint,
		IndexName:      e.indexPrefix + c.BotID,
		TopN:           e.topN,
		SemanticConfig: e.semanticConfig,
	}

	note := "Answer using the retrieved knowledge-base documents. " +
		"When the documents do not cover the question, say so instead of guessing."
	if summaries := processedDigest(c.Processed); summaries != "" {
		note += "\n\nThe user also attached the following content:\n" + summaries
	}

	enriched := append(copyMessages(c.EnrichedOrRaw()), domain.TextMessage(domain.RoleSystem, note))
	return c.WithEnriched(enriched).WithMetadata(pipeline.MetaRetrieval, cfg), nil
}

// processedDigest renders the textual processed artifacts as a compact
// named list. Image references carry no text and are skipped.
func processedDigest(items []domain.ProcessedContent) string {
	var b strings.Builder
	for _, item := range items {
		if item.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", item.Name, item.Text)
	}
	return strings.TrimSpace(b.String())
}

func copyMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	copy(out, in)
	return out
}

package pipeline

import (
	"testing"

	"github.com/msf-usa/chatd/internal/domain"
)

func TestWithProcessedDoesNotMutateInput(t *testing.T) {
	base := Context{}.WithProcessed(domain.ProcessedContent{Kind: domain.ProcessedTranscript, Name: "a"})

	extended := base.WithProcessed(domain.ProcessedContent{Kind: domain.ProcessedSummary, Name: "b"})
	if len(base.Processed) != 1 {
		t.Fatalf("input context mutated: %d items", len(base.Processed))
	}
	if len(extended.Processed) != 2 {
		t.Fatalf("extension lost items: %d", len(extended.Processed))
	}
}

func TestWithMetadataCopiesMap(t *testing.T) {
	base := Context{}.WithMetadata("a", 1)
	next := base.WithMetadata("b", 2)

	if _, ok := base.Metadata["b"]; ok {
		t.Fatalf("input context's metadata map mutated")
	}
	if next.Metadata["a"] != 1 || next.Metadata["b"] != 2 {
		t.Fatalf("unexpected metadata: %+v", next.Metadata)
	}
}

func TestEnrichedOrRaw(t *testing.T) {
	raw := []domain.Message{domain.TextMessage(domain.RoleUser, "hi")}
	c := Context{Messages: raw}
	if got := c.EnrichedOrRaw(); len(got) != 1 || got[0].Content.Text != "hi" {
		t.Fatalf("unexpected raw fallback: %+v", got)
	}

	enriched := append(append([]domain.Message{}, raw...), domain.TextMessage(domain.RoleSystem, "note"))
	c = c.WithEnriched(enriched)
	if got := c.EnrichedOrRaw(); len(got) != 2 {
		t.Fatalf("enriched set not preferred: %+v", got)
	}
}

func TestCitationsAccumulate(t *testing.T) {
	c := Context{}.WithCitations(domain.Citation{Number: 1, URL: "https://a"})
	c = c.WithCitations(domain.Citation{Number: 2, URL: "https://b"})

	got := c.Citations()
	if len(got) != 2 || got[1].URL != "https://b" {
		t.Fatalf("unexpected citations: %+v", got)
	}
}

// Package pipeline contains the staged execution engine that routes a
// single conversational turn: the request-scoped Context value, the stage
// contract, the context builder and the orchestrator.
package pipeline

import (
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/domain"
)

// Well-known keys of the metadata side channel.
const (
	MetaRetrieval = "retrieval"
	MetaCitations = "citations"
	MetaProgress  = "progress"
)

// Metrics records wall-clock bookkeeping for one request.
type Metrics struct {
	StartedAt      time.Time
	EndedAt        time.Time
	StageDurations map[string]time.Duration
}

func (m Metrics) clone() Metrics {
	out := m
	out.StageDurations = maps.Clone(m.StageDurations)
	if out.StageDurations == nil {
		out.StageDurations = map[string]time.Duration{}
	}
	return out
}

// Context is the request-scoped value threaded through every stage. It is
// passed by value-with-replace: no stage mutates a shared instance, each
// returns a new version. The With* helpers copy the accumulator being
// extended so the input value stays untouched.
type Context struct {
	RequestID string
	User      domain.User
	Model     domain.ModelInfo
	Prompt    string

	Temperature     float64
	Stream          bool
	ReasoningEffort string
	Verbosity       string
	BotID           string
	SearchMode      domain.SearchMode
	ForcedAgentType string
	ThreadID        string

	// Messages is never mutated in place.
	Messages []domain.Message

	// Derived once by the builder, read-only afterward.
	HasFiles  bool
	HasImages bool
	HasAudio  bool

	// Accumulators, replaced rather than mutated.
	Enriched  []domain.Message
	Processed []domain.ProcessedContent
	Metadata  map[string]any
	Strategy  domain.ExecutionStrategy
	Errors    []StageError
	Metrics   Metrics

	// Response is set only by the terminal execution handler.
	Response *Response

	Logger *zap.Logger
}

// Log returns the request logger, falling back to a no-op logger so
// stages never need a nil check.
func (c Context) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// WithEnriched replaces the enriched message set. Later enrichers must
// read the current set via EnrichedOrRaw and extend it, not discard it.
func (c Context) WithEnriched(messages []domain.Message) Context {
	c.Enriched = messages
	return c
}

// EnrichedOrRaw returns the enriched messages when set, else the raw ones.
func (c Context) EnrichedOrRaw() []domain.Message {
	if c.Enriched != nil {
		return c.Enriched
	}
	return c.Messages
}

// WithProcessed appends processed content items.
func (c Context) WithProcessed(items ...domain.ProcessedContent) Context {
	next := make([]domain.ProcessedContent, 0, len(c.Processed)+len(items))
	next = append(next, c.Processed...)
	next = append(next, items...)
	c.Processed = next
	return c
}

// WithMetadata sets one metadata side-channel entry on a copied map.
func (c Context) WithMetadata(key string, value any) Context {
	next := maps.Clone(c.Metadata)
	if next == nil {
		next = map[string]any{}
	}
	next[key] = value
	c.Metadata = next
	return c
}

// Citations returns the citations accumulated in the side channel.
func (c Context) Citations() []domain.Citation {
	if v, ok := c.Metadata[MetaCitations].([]domain.Citation); ok {
		return v
	}
	return nil
}

// WithCitations appends citations to the side channel.
func (c Context) WithCitations(citations ...domain.Citation) Context {
	merged := append(append([]domain.Citation{}, c.Citations()...), citations...)
	return c.WithMetadata(MetaCitations, merged)
}

// WithError appends a stage error; errors accumulate monotonically.
func (c Context) WithError(stage string, err error) Context {
	severity := SeverityRecoverable
	if IsCritical(err) {
		severity = SeverityCritical
	}
	next := make([]StageError, 0, len(c.Errors)+1)
	next = append(next, c.Errors...)
	next = append(next, StageError{Stage: stage, Err: err, Severity: severity})
	c.Errors = next
	return c
}

// HasCriticalError reports whether any recorded error aborts the pipeline.
func (c Context) HasCriticalError() bool {
	for _, e := range c.Errors {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// FirstCriticalError returns the first critical entry, or nil.
func (c Context) FirstCriticalError() *StageError {
	for i := range c.Errors {
		if c.Errors[i].Severity == SeverityCritical {
			return &c.Errors[i]
		}
	}
	return nil
}

func (c Context) withStart(t time.Time) Context {
	m := c.Metrics.clone()
	m.StartedAt = t
	c.Metrics = m
	return c
}

func (c Context) withEnd(t time.Time) Context {
	m := c.Metrics.clone()
	m.EndedAt = t
	c.Metrics = m
	return c
}

func (c Context) withStageDuration(stage string, d time.Duration) Context {
	m := c.Metrics.clone()
	m.StageDurations[stage] = d
	c.Metrics = m
	return c
}

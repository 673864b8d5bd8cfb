// Package domain defines the core domain models threaded through the
// request pipeline.
package domain

import "time"

// User is the opaque authenticated identity supplied by the gateway.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// ModelInfo is the declarative description of a selectable model. The
// Provider tag decides which call-shape strategy handles it.
type ModelInfo struct {
	ID                  string   `yaml:"id" json:"id"`
	Provider            Provider `yaml:"provider" json:"provider"`
	Deployment          string   `yaml:"deployment,omitempty" json:"deployment,omitempty"`
	Vision              bool     `yaml:"vision" json:"vision"`
	AgentCapable        bool     `yaml:"agentCapable" json:"agent_capable"`
	SupportsTemperature bool     `yaml:"supportsTemperature" json:"supports_temperature"`
	SupportsSystemRole  bool     `yaml:"supportsSystemRole" json:"supports_system_role"`
	MaxOutputTokens     int      `yaml:"maxOutputTokens,omitempty" json:"max_output_tokens,omitempty"`
}

// WireID returns the identifier sent on the wire for this model.
func (m ModelInfo) WireID() string {
	if m.Deployment != "" {
		return m.Deployment
	}
	return m.ID
}

// Citation is a single numbered source reference. Identity for
// deduplication is the URL, falling back to the title when no URL exists.
type Citation struct {
	Number int    `json:"number"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Date   string `json:"date,omitempty"`
}

// Key returns the deduplication identity of the citation.
func (c Citation) Key() string {
	if c.URL != "" {
		return c.URL
	}
	return c.Title
}

// ProcessedContent is one derived artifact produced by a content
// processor: a transcript, a pending-transcription marker, a document
// summary, or a passed-through image reference.
type ProcessedContent struct {
	Kind     ProcessedKind `json:"kind"`
	Name     string        `json:"name,omitempty"`
	Text     string        `json:"text,omitempty"`
	RawHead  string        `json:"raw_head,omitempty"`
	ImageURL string        `json:"image_url,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
}

// RetrievalConfig is produced by the retrieval enricher and applied at
// model-call time by the execution stage.
type RetrievalConfig struct {
	Endpoint       string `json:"endpoint"`
	IndexName      string `json:"index_name"`
	TopN           int    `json:"top_n"`
	SemanticConfig string `json:"semantic_config,omitempty"`
}

// TurnRecord is the per-turn usage row persisted to the usage ledger.
type TurnRecord struct {
	RequestID      string
	UserID         string
	Model          string
	Strategy       ExecutionStrategy
	StartedAt      time.Time
	EndedAt        time.Time
	StageDurations map[string]time.Duration
	Errors         []string
}

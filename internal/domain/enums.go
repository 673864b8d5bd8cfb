package domain

// SearchMode controls whether and how external search capability is applied
// to a turn.
type SearchMode string

const (
	SearchModeOff         SearchMode = "off"
	SearchModeIntelligent SearchMode = "intelligent"
	SearchModeAlways      SearchMode = "always"
	SearchModeAgent       SearchMode = "agent"
)

// Valid reports whether the mode is one of the known values.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeOff, SearchModeIntelligent, SearchModeAlways, SearchModeAgent:
		return true
	}
	return false
}

// ExecutionStrategy selects which terminal stage produces the response.
type ExecutionStrategy string

const (
	ExecutionStandard ExecutionStrategy = "standard"
	ExecutionAgent    ExecutionStrategy = "agent"
)

// Provider is the closed set of upstream call shapes. Dispatch over this
// enum is exhaustive; an unknown value is a configuration error, not a
// runtime guess.
type Provider string

const (
	// ProviderResponses is the responses-style call shape.
	ProviderResponses Provider = "responses"
	// ProviderChat is the standard chat-completions shape.
	ProviderChat Provider = "chat"
	// ProviderReasoning is the model family that must never see a
	// system-role message and does not accept a temperature.
	ProviderReasoning Provider = "reasoning"
	// ProviderAnthropic is the vendor API with a top-level system
	// parameter and its own content-block and stream-event encodings.
	ProviderAnthropic Provider = "anthropic"
)

// Valid reports whether p names a known call shape.
func (p Provider) Valid() bool {
	switch p {
	case ProviderResponses, ProviderChat, ProviderReasoning, ProviderAnthropic:
		return true
	}
	return false
}

// ProcessedKind classifies an entry in the processed-content accumulator.
type ProcessedKind string

const (
	ProcessedTranscript        ProcessedKind = "transcript"
	ProcessedPendingTranscript ProcessedKind = "pending_transcript"
	ProcessedSummary           ProcessedKind = "summary"
	ProcessedImage             ProcessedKind = "image"
)

// Role values for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

package domain

// ChatRequest is the inbound JSON body for a single conversational turn.
// Unknown top-level fields are rejected at parse time.
type ChatRequest struct {
	Model           string     `json:"model"`
	Messages        []Message  `json:"messages"`
	Prompt          string     `json:"prompt,omitempty"`
	Temperature     *float64   `json:"temperature,omitempty"`
	Stream          *bool      `json:"stream,omitempty"`
	ReasoningEffort string     `json:"reasoningEffort,omitempty"`
	Verbosity       string     `json:"verbosity,omitempty"`
	BotID           string     `json:"botId,omitempty"`
	SearchMode      SearchMode `json:"searchMode,omitempty"`
	ThreadID        string     `json:"threadId,omitempty"`
	ForcedAgentType string     `json:"forcedAgentType,omitempty"`
}

// WantStream reports the effective streaming flag; streaming defaults on.
func (r *ChatRequest) WantStream() bool {
	return r.Stream == nil || *r.Stream
}

// Package modelhandler normalizes the four incompatible upstream model
// call shapes behind one strategy interface. Selection dispatches
// exhaustively over the closed provider enum; provider quirks (no system
// role, no temperature, vendor-specific content blocks and stream
// events) live entirely inside the matching strategy.
package modelhandler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/msf-usa/chatd/internal/domain"
)

// Request is the normalized model call built by the execution handler.
type Request struct {
	Model           domain.ModelInfo
	Messages        []domain.Message
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	Stream          bool
	ReasoningEffort string
	Verbosity       string
	BotID           string
	Retrieval       *domain.RetrievalConfig
}

// Result is the outcome of a completed call. For streaming calls Text is
// the concatenation of all deltas already delivered to the callback.
type Result struct {
	Text string
}

// DeltaFunc receives each streamed content delta as it arrives.
type DeltaFunc func(delta string) error

// Handler is the per-provider strategy. Every strategy exposes the same
// four operations so the execution handler stays provider-agnostic.
type Handler interface {
	Kind() domain.Provider
	ResolveModelID(m domain.ModelInfo) string
	PrepareMessages(req *Request) (any, error)
	BuildParams(req *Request) (map[string]any, error)
	Execute(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error)
}

// Config holds provider endpoints and credentials.
type Config struct {
	ResponsesEndpoint string
	ResponsesKey      string
	ChatEndpoint      string
	ChatKey           string
	AnthropicEndpoint string
	AnthropicKey      string
	AnthropicVersion  string
	Timeout           time.Duration
	MaxOutputTokens   int
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

// Select returns the strategy for the given provider kind. The switch is
// exhaustive over the closed enum; adding a provider kind without a
// strategy is caught here, not guessed around.
func Select(kind domain.Provider, cfg Config) (Handler, error) {
	switch kind {
	case domain.ProviderResponses:
		return NewResponsesHandler(cfg), nil
	case domain.ProviderChat:
		return NewChatHandler(cfg), nil
	case domain.ProviderReasoning:
		return NewReasoningHandler(cfg), nil
	case domain.ProviderAnthropic:
		return NewAnthropicHandler(cfg), nil
	default:
		return nil, fmt.Errorf("no model handler for provider kind %q", kind)
	}
}

// StatusError carries the status code reported by an upstream provider
// so the transport can surface a best-effort HTTP status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

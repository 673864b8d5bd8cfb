package modelhandler

import (
	"context"

	"github.com/msf-usa/chatd/internal/domain"
)

// ReasoningHandler serves the model family that must never see a
// system-role message and rejects a temperature parameter. It reuses the
// chat-completions wire shape with those two quirks applied.
type ReasoningHandler struct {
	chat *ChatHandler
}

// NewReasoningHandler creates the no-system-role strategy.
func NewReasoningHandler(cfg Config) *ReasoningHandler {
	return &ReasoningHandler{chat: NewChatHandler(cfg)}
}

// Kind returns the provider kind this strategy serves.
func (h *ReasoningHandler) Kind() domain.Provider { return domain.ProviderReasoning }

// ResolveModelID returns the deployment id when one is configured.
func (h *ReasoningHandler) ResolveModelID(m domain.ModelInfo) string { return m.WireID() }

// PrepareMessages merges the system prompt into the first user turn
// instead of emitting a system-role message.
func (h *ReasoningHandler) PrepareMessages(req *Request) (any, error) {
	out := make([]domain.Message, len(req.Messages))
	copy(out, req.Messages)

	if req.SystemPrompt == "" {
		return out, nil
	}
	for i := range out {
		if out[i].Role != domain.RoleUser {
			continue
		}
		merged := out[i]
		if merged.Content.IsBlocks {
			blocks := make([]domain.ContentBlock, 0, len(merged.Content.Blocks)+1)
			blocks = append(blocks, domain.ContentBlock{Type: domain.BlockText, Text: req.SystemPrompt})
			blocks = append(blocks, merged.Content.Blocks...)
			merged.Content = domain.MessageContent{Blocks: blocks, IsBlocks: true}
		} else {
			merged.Content = domain.MessageContent{Text: req.SystemPrompt + "\n\n" + merged.Content.Text}
		}
		out[i] = merged
		return out, nil
	}
	// No user turn to merge into; lead with a user message.
	return append([]domain.Message{domain.TextMessage(domain.RoleUser, req.SystemPrompt)}, out...), nil
}

// BuildParams assembles the request body. Temperature is never sent;
// reasoning effort rides along when the caller provided a hint.
func (h *ReasoningHandler) BuildParams(req *Request) (map[string]any, error) {
	messages, err := h.PrepareMessages(req)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"model":    h.ResolveModelID(req.Model),
		"messages": messages,
		"stream":   req.Stream,
	}
	if req.MaxTokens > 0 {
		params["max_completion_tokens"] = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		params["reasoning_effort"] = req.ReasoningEffort
	}
	return params, nil
}

// Execute sends the call over the chat-completions transport with this
// strategy's parameters.
func (h *ReasoningHandler) Execute(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error) {
	params, err := h.BuildParams(req)
	if err != nil {
		return nil, err
	}
	return h.chat.executeParams(ctx, params, req.Stream, onDelta)
}

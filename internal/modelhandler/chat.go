package modelhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/msf-usa/chatd/internal/domain"
)

// ChatHandler speaks the standard chat-completions shape.
type ChatHandler struct {
	endpoint   string
	apiKey     string
	cfg        Config
	httpClient *http.Client
}

// NewChatHandler creates the chat-completions strategy.
func NewChatHandler(cfg Config) *ChatHandler {
	return &ChatHandler{
		endpoint:   strings.TrimSuffix(cfg.ChatEndpoint, "/"),
		apiKey:     cfg.ChatKey,
		cfg:        cfg,
		httpClient: cfg.httpClient(),
	}
}

// Kind returns the provider kind this strategy serves.
func (h *ChatHandler) Kind() domain.Provider { return domain.ProviderChat }

// ResolveModelID returns the deployment id when one is configured.
func (h *ChatHandler) ResolveModelID(m domain.ModelInfo) string { return m.WireID() }

// PrepareMessages converts the conversation to the chat-completions wire
// format, prepending the system prompt as a system-role message.
func (h *ChatHandler) PrepareMessages(req *Request) (any, error) {
	out := make([]domain.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, domain.TextMessage(domain.RoleSystem, req.SystemPrompt))
	}
	out = append(out, req.Messages...)
	return out, nil
}

// BuildParams assembles the request body, including the knowledge-base
// grounding extension when retrieval configuration rode in on the turn.
func (h *ChatHandler) BuildParams(req *Request) (map[string]any, error) {
	messages, err := h.PrepareMessages(req)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"model":    h.ResolveModelID(req.Model),
		"messages": messages,
		"stream":   req.Stream,
	}
	if req.Model.SupportsTemperature {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		params["max_tokens"] = req.MaxTokens
	}
	if req.Retrieval != nil {
		params["data_sources"] = []map[string]any{{
			"type": "azure_search",
			"parameters": map[string]any{
				"endpoint":               req.Retrieval.Endpoint,
				"index_name":             req.Retrieval.IndexName,
				"top_n_documents":        req.Retrieval.TopN,
				"semantic_configuration": req.Retrieval.SemanticConfig,
				"query_type":             "semantic",
			},
		}}
	}
	return params, nil
}

// Execute sends the call. For streaming requests each content delta is
// forwarded to onDelta as it arrives.
func (h *ChatHandler) Execute(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error) {
	params, err := h.BuildParams(req)
	if err != nil {
		return nil, err
	}
	return h.executeParams(ctx, params, req.Stream, onDelta)
}

// executeParams sends an already-built body over the chat-completions
// transport. The reasoning strategy shares it.
func (h *ChatHandler) executeParams(ctx context.Context, params map[string]any, stream bool, onDelta DeltaFunc) (*Result, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := postJSON(h.httpClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !stream {
		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("provider returned no choices")
		}
		return &Result{Text: parsed.Choices[0].Message.Content}, nil
	}

	var full strings.Builder
	err = scanSSE(resp.Body, func(data string) error {
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			return nil
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		full.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: full.String()}, nil
}

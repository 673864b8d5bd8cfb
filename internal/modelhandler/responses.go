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

// ResponsesHandler speaks the responses-style call shape: a flat input
// item list with typed content parts, instructions instead of a system
// message, and typed stream events.
type ResponsesHandler struct {
	endpoint   string
	apiKey     string
	cfg        Config
	httpClient *http.Client
}

// NewResponsesHandler creates the responses-style strategy.
func NewResponsesHandler(cfg Config) *ResponsesHandler {
	return &ResponsesHandler{
		endpoint:   strings.TrimSuffix(cfg.ResponsesEndpoint, "/"),
		apiKey:     cfg.ResponsesKey,
		cfg:        cfg,
		httpClient: cfg.httpClient(),
	}
}

// Kind returns the provider kind this strategy serves.
func (h *ResponsesHandler) Kind() domain.Provider { return domain.ProviderResponses }

// ResolveModelID returns the deployment id when one is configured.
func (h *ResponsesHandler) ResolveModelID(m domain.ModelInfo) string { return m.WireID() }

// PrepareMessages converts the conversation into input items with typed
// content parts. User content uses input_* part types, assistant content
// output_text.
func (h *ResponsesHandler) PrepareMessages(req *Request) (any, error) {
	items := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		textType := "input_text"
		if m.Role == domain.RoleAssistant {
			textType = "output_text"
		}
		var parts []map[string]any
		if m.Content.IsBlocks {
			for _, b := range m.Content.Blocks {
				switch b.Type {
				case domain.BlockText:
					parts = append(parts, map[string]any{"type": textType, "text": b.Text})
				case domain.BlockImage:
					parts = append(parts, map[string]any{"type": "input_image", "image_url": b.ImageURL})
				case domain.BlockFile:
					// File references were already replaced by processed
					// content upstream; keep the name for context.
					parts = append(parts, map[string]any{"type": textType, "text": "[file: " + b.Name + "]"})
				}
			}
		} else {
			parts = append(parts, map[string]any{"type": textType, "text": m.Content.Text})
		}
		items = append(items, map[string]any{"role": m.Role, "content": parts})
	}
	return items, nil
}

// BuildParams assembles the request body; the system prompt travels as
// top-level instructions.
func (h *ResponsesHandler) BuildParams(req *Request) (map[string]any, error) {
	input, err := h.PrepareMessages(req)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"model":  h.ResolveModelID(req.Model),
		"input":  input,
		"stream": req.Stream,
	}
	if req.SystemPrompt != "" {
		params["instructions"] = req.SystemPrompt
	}
	if req.Model.SupportsTemperature {
		params["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		params["max_output_tokens"] = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		params["reasoning"] = map[string]any{"effort": req.ReasoningEffort}
	}
	if req.Verbosity != "" {
		params["text"] = map[string]any{"verbosity": req.Verbosity}
	}
	return params, nil
}

// Execute sends the call, decoding the typed stream events into plain
// content deltas.
func (h *ResponsesHandler) Execute(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error) {
	params, err := h.BuildParams(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/v1/responses", bytes.NewReader(body))
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

	if !req.Stream {
		var parsed struct {
			Output []struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"output"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		var text strings.Builder
		for _, item := range parsed.Output {
			for _, c := range item.Content {
				if c.Type == "output_text" {
					text.WriteString(c.Text)
				}
			}
		}
		return &Result{Text: text.String()}, nil
	}

	var full strings.Builder
	err = scanSSE(resp.Body, func(data string) error {
		var event struct {
			Type  string `json:"type"`
			Delta string `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil
		}
		if event.Type != "response.output_text.delta" || event.Delta == "" {
			return nil
		}
		full.WriteString(event.Delta)
		if onDelta != nil {
			return onDelta(event.Delta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: full.String()}, nil
}

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

// AnthropicHandler speaks the vendor API that takes system instructions
// as a top-level parameter, encodes multimodal content with its own block
// types and streams its own event shapes.
type AnthropicHandler struct {
	endpoint   string
	apiKey     string
	version    string
	cfg        Config
	httpClient *http.Client
}

// NewAnthropicHandler creates the vendor strategy.
func NewAnthropicHandler(cfg Config) *AnthropicHandler {
	return &AnthropicHandler{
		endpoint:   strings.TrimSuffix(cfg.AnthropicEndpoint, "/"),
		apiKey:     cfg.AnthropicKey,
		version:    cfg.AnthropicVersion,
		cfg:        cfg,
		httpClient: cfg.httpClient(),
	}
}

// Kind returns the provider kind this strategy serves.
func (h *AnthropicHandler) Kind() domain.Provider { return domain.ProviderAnthropic }

// ResolveModelID returns the deployment id when one is configured.
func (h *AnthropicHandler) ResolveModelID(m domain.ModelInfo) string { return m.WireID() }

// PrepareMessages converts the conversation into this vendor's message
// encoding. System-role messages are dropped here; their content belongs
// in the top-level system parameter.
func (h *AnthropicHandler) PrepareMessages(req *Request) (any, error) {
	out := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		var blocks []map[string]any
		if m.Content.IsBlocks {
			for _, b := range m.Content.Blocks {
				switch b.Type {
				case domain.BlockText:
					blocks = append(blocks, map[string]any{"type": "text", "text": b.Text})
				case domain.BlockImage:
					blocks = append(blocks, map[string]any{
						"type":   "image",
						"source": map[string]any{"type": "url", "url": b.ImageURL},
					})
				case domain.BlockFile:
					blocks = append(blocks, map[string]any{"type": "text", "text": "[file: " + b.Name + "]"})
				}
			}
		} else {
			blocks = append(blocks, map[string]any{"type": "text", "text": m.Content.Text})
		}
		out = append(out, map[string]any{"role": m.Role, "content": blocks})
	}
	return out, nil
}

// BuildParams assembles the request body. max_tokens is mandatory for
// this API.
func (h *AnthropicHandler) BuildParams(req *Request) (map[string]any, error) {
	messages, err := h.PrepareMessages(req)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = h.cfg.MaxOutputTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	params := map[string]any{
		"model":      h.ResolveModelID(req.Model),
		"messages":   messages,
		"max_tokens": maxTokens,
		"stream":     req.Stream,
	}
	if req.SystemPrompt != "" {
		params["system"] = req.SystemPrompt
	}
	if req.Model.SupportsTemperature {
		// This API bounds temperature at 1.
		t := req.Temperature
		if t > 1 {
			t = 1
		}
		params["temperature"] = t
	}
	return params, nil
}

// Execute sends the call, decoding content_block_delta events into plain
// content deltas.
func (h *AnthropicHandler) Execute(ctx context.Context, req *Request, onDelta DeltaFunc) (*Result, error) {
	params, err := h.BuildParams(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", h.apiKey)
	httpReq.Header.Set("anthropic-version", h.version)

	resp, err := postJSON(h.httpClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !req.Stream {
		var parsed struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		var text strings.Builder
		for _, c := range parsed.Content {
			if c.Type == "text" {
				text.WriteString(c.Text)
			}
		}
		return &Result{Text: text.String()}, nil
	}

	var full strings.Builder
	err = scanSSE(resp.Body, func(data string) error {
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return nil
		}
		if event.Type != "content_block_delta" || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			return nil
		}
		full.WriteString(event.Delta.Text)
		if onDelta != nil {
			return onDelta(event.Delta.Text)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: full.String()}, nil
}

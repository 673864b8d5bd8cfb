package modelhandler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/msf-usa/chatd/internal/domain"
)

func TestResponsesBuildParams(t *testing.T) {
	h := NewResponsesHandler(Config{})
	req := &Request{
		Model:           domain.ModelInfo{ID: "gpt-5", SupportsTemperature: true},
		Messages:        []domain.Message{domain.TextMessage(domain.RoleUser, "hi")},
		SystemPrompt:    "be terse",
		Temperature:     0.5,
		MaxTokens:       1024,
		ReasoningEffort: "medium",
		Verbosity:       "low",
	}
	params, err := h.BuildParams(req)
	if err != nil {
		t.Fatalf("BuildParams failed: %v", err)
	}
	if params["instructions"] != "be terse" {
		t.Fatalf("instructions missing: %+v", params)
	}
	if params["max_output_tokens"] != 1024 {
		t.Fatalf("max_output_tokens wrong: %+v", params["max_output_tokens"])
	}
	reasoning := params["reasoning"].(map[string]any)
	if reasoning["effort"] != "medium" {
		t.Fatalf("reasoning effort wrong: %+v", reasoning)
	}
	text := params["text"].(map[string]any)
	if text["verbosity"] != "low" {
		t.Fatalf("verbosity wrong: %+v", text)
	}
}

func TestResponsesInputItems(t *testing.T) {
	h := NewResponsesHandler(Config{})
	req := &Request{
		Model: domain.ModelInfo{ID: "gpt-5"},
		Messages: []domain.Message{
			{
				Role: domain.RoleUser,
				Content: domain.MessageContent{IsBlocks: true, Blocks: []domain.ContentBlock{
					{Type: domain.BlockText, Text: "describe"},
					{Type: domain.BlockImage, ImageURL: "https://storage.internal/x.png"},
				}},
			},
			domain.TextMessage(domain.RoleAssistant, "earlier"),
		},
	}
	prepared, err := h.PrepareMessages(req)
	if err != nil {
		t.Fatalf("PrepareMessages failed: %v", err)
	}
	items := prepared.([]map[string]any)

	userParts := items[0]["content"].([]map[string]any)
	if userParts[0]["type"] != "input_text" || userParts[1]["type"] != "input_image" {
		t.Fatalf("user part types wrong: %+v", userParts)
	}
	assistantParts := items[1]["content"].([]map[string]any)
	if assistantParts[0]["type"] != "output_text" {
		t.Fatalf("assistant text must be output_text: %+v", assistantParts)
	}
}

func TestResponsesExecuteStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hi\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.completed\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	h := NewResponsesHandler(Config{ResponsesEndpoint: server.URL})
	result, err := h.Execute(context.Background(), &Request{
		Model:    domain.ModelInfo{ID: "gpt-5"},
		Messages: []domain.Message{domain.TextMessage(domain.RoleUser, "hello")},
		Stream:   true,
	}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Text != "Hi" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

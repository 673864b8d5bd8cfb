// Package agentapi provides the HTTP client for the stateful upstream
// agent service: thread creation and run streaming over SSE.
package agentapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/msf-usa/chatd/internal/domain"
)

// Event types on the run stream.
const (
	EventDelta = "thread.message.delta"
	EventDone  = "thread.run.completed"
	EventError = "error"
)

// RunEvent is one parsed event from the run stream.
type RunEvent struct {
	Type  string
	Delta string
	Error string
}

// EventHandler is called for each event on the run stream.
type EventHandler func(event RunEvent) error

// Runner is the agent-service contract consumed by the agent execution
// handler.
type Runner interface {
	CreateThread(ctx context.Context) (string, error)
	StreamRun(ctx context.Context, threadID, agentType string, messages []domain.Message, handler EventHandler) error
}

// Client is an HTTP client for the agent service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new agent client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// CreateThread creates a new provider-side thread and returns its id.
// The caller round-trips the id unchanged to resume the thread later.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/threads", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("agent service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode thread response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("agent service returned no thread id")
	}
	return out.ID, nil
}

type runRequest struct {
	AgentType string           `json:"agent_type,omitempty"`
	Messages  []domain.Message `json:"messages"`
	Stream    bool             `json:"stream"`
}

// StreamRun appends the messages to the thread, starts a run and streams
// its SSE events to the handler.
func (c *Client) StreamRun(ctx context.Context, threadID, agentType string, messages []domain.Message, handler EventHandler) error {
	body, err := json.Marshal(runRequest{AgentType: agentType, Messages: messages, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/threads/%s/runs", c.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("agent service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return parseSSE(resp.Body, handler)
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventType, data string
	flush := func() error {
		if eventType == "" && data == "" {
			return nil
		}
		ev, err := decodeEvent(eventType, data)
		eventType, data = "", ""
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		return handler(*ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data != "" {
				data += "\n" + chunk
			} else {
				data = chunk
			}
		}
		// Ignore comments and other fields.
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}

func decodeEvent(eventType, data string) (*RunEvent, error) {
	switch eventType {
	case EventDelta:
		var payload struct {
			Delta struct {
				Content []struct {
					Text struct {
						Value string `json:"value"`
					} `json:"text"`
				} `json:"content"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse delta event: %w", err)
		}
		var text strings.Builder
		for _, c := range payload.Delta.Content {
			text.WriteString(c.Text.Value)
		}
		return &RunEvent{Type: EventDelta, Delta: text.String()}, nil
	case EventDone:
		return &RunEvent{Type: EventDone}, nil
	case EventError:
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse error event: %w", err)
		}
		return &RunEvent{Type: EventError, Error: payload.Message}, nil
	default:
		// Unknown event types are skipped so new upstream events do not
		// break older deployments.
		return nil, nil
	}
}

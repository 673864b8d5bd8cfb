package execute

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/msf-usa/chatd/internal/adapter/agentapi"
	"github.com/msf-usa/chatd/internal/citations"
	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
	"github.com/msf-usa/chatd/internal/streamcodec"
)

// Agent executes promoted turns against the stateful agent service,
// rewriting its bracketed-source notation into sequential markers on the
// fly.
type Agent struct {
	runner agentapi.Runner
}

// NewAgent creates the agent execution handler.
func NewAgent(runner agentapi.Runner) *Agent {
	return &Agent{runner: runner}
}

// Name identifies the stage in metrics and error entries.
func (h *Agent) Name() string { return "agent_executor" }

// ShouldRun runs only for turns promoted to agent execution.
func (h *Agent) ShouldRun(c pipeline.Context) bool {
	return c.Strategy == domain.ExecutionAgent
}

// Run resolves the thread, then streams the run. The thread id is
// round-tripped unchanged so the caller can resume the conversation.
func (h *Agent) Run(ctx context.Context, c pipeline.Context) (pipeline.Context, error) {
	threadID := c.ThreadID
	if threadID == "" {
		id, err := h.runner.CreateThread(ctx)
		if err != nil {
			return c, pipeline.Critical(fmt.Errorf("failed to create agent thread: %w", err))
		}
		threadID = id
	}
	c.ThreadID = threadID

	messages := c.EnrichedOrRaw()
	agentType := c.ForcedAgentType

	if !c.Stream {
		rewriter := citations.NewStreamRewriter()
		var text strings.Builder
		err := h.runner.StreamRun(ctx, threadID, agentType, messages, func(ev agentapi.RunEvent) error {
			switch ev.Type {
			case agentapi.EventDelta:
				text.WriteString(rewriter.Process(ev.Delta))
			case agentapi.EventError:
				return fmt.Errorf("agent run failed: %s", ev.Error)
			}
			return nil
		})
		if err != nil {
			return c, pipeline.Critical(err)
		}
		text.WriteString(rewriter.Flush())
		c = c.WithCitations(rewriter.Citations()...)
		c.Response = &pipeline.Response{Text: text.String()}
		return c, nil
	}

	c.Response = &pipeline.Response{
		Streaming: true,
		Stream: func(ctx context.Context, w io.Writer) error {
			rewriter := citations.NewStreamRewriter()
			err := h.runner.StreamRun(ctx, threadID, agentType, messages, func(ev agentapi.RunEvent) error {
				switch ev.Type {
				case agentapi.EventDelta:
					if out := rewriter.Process(ev.Delta); out != "" {
						if _, werr := io.WriteString(w, out); werr != nil {
							return werr
						}
					}
				case agentapi.EventError:
					return fmt.Errorf("agent run failed: %s", ev.Error)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if out := rewriter.Flush(); out != "" {
				if _, werr := io.WriteString(w, out); werr != nil {
					return werr
				}
			}
			final := streamcodec.Metadata{
				Kind:      streamcodec.KindFinal,
				ThreadID:  threadID,
				Citations: rewriter.Citations(),
			}
			return streamcodec.WriteBlock(w, final)
		},
	}
	return c, nil
}

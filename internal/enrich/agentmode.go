package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/msf-usa/chatd/internal/domain"
	"github.com/msf-usa/chatd/internal/pipeline"
)

// AgentMode promotes eligible turns to the agent execution strategy, or
// falls back to intelligent search when the turn cannot go through the
// agent service.
type AgentMode struct{}

// NewAgentMode creates the agent-mode enricher.
func NewAgentMode() *AgentMode { return &AgentMode{} }

// Name identifies the stage in metrics and error entries.
func (e *AgentMode) Name() string { return "agent_mode_enricher" }

// ShouldRun runs when the caller asked for agent execution, explicitly
// or via the agent search mode.
func (e *AgentMode) ShouldRun(c pipeline.Context) bool {
	return c.SearchMode == domain.SearchModeAgent || c.ForcedAgentType != ""
}

// Run decides between promoting the turn and degrading it. The agent
// service takes text only, so multimodal turns fall back to intelligent
// search; so do models without agent support.
func (e *AgentMode) Run(_ context.Context, c pipeline.Context) (pipeline.Context, error) {
	multimodal := c.HasFiles || c.HasImages || c.HasAudio
	if multimodal || !c.Model.AgentCapable {
		c.Log().Info("agent mode unavailable, falling back to intelligent search",
			zap.Bool("multimodal", multimodal),
			zap.Bool("agent_capable", c.Model.AgentCapable))
		c.SearchMode = domain.SearchModeIntelligent
		return c, nil
	}
	c.Strategy = domain.ExecutionAgent
	return c, nil
}

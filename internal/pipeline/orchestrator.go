package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Orchestrator drives an ordered, fixed list of stages over a Context:
// content processors first, then enrichers, then exactly one execution
// handler. Execution is a fold with per-stage fault isolation and an
// early exit when a stage records a critical error.
type Orchestrator struct {
	stages []Stage
}

// NewOrchestrator creates an orchestrator over the given stage order.
func NewOrchestrator(stages ...Stage) *Orchestrator {
	return &Orchestrator{stages: stages}
}

// Execute runs the stage list. A stage whose predicate declines leaves
// the context untouched apart from metric bookkeeping. A stage failure is
// recorded on the input context and iteration continues unless the error
// is critical, in which case the remaining stages never run. The end
// timestamp is always stamped before returning.
func (o *Orchestrator) Execute(ctx context.Context, c Context) Context {
	c = c.withStart(time.Now())

	for _, s := range o.stages {
		if !s.ShouldRun(c) {
			continue
		}
		start := time.Now()
		next, err := runStage(ctx, s, c)
		elapsed := time.Since(start)
		if err != nil {
			c = c.WithError(s.Name(), err)
			c.Log().Warn("stage failed",
				zap.String("stage", s.Name()),
				zap.Duration("elapsed", elapsed),
				zap.Bool("critical", IsCritical(err)),
				zap.Error(err))
		} else {
			c = next
		}
		c = c.withStageDuration(s.Name(), elapsed)
		if c.HasCriticalError() {
			break
		}
	}

	return c.withEnd(time.Now())
}

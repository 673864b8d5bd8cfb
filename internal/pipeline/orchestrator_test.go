package pipeline

import (
	"context"
	"errors"
	"testing"
)

type fakeStage struct {
	name      string
	shouldRun bool
	run       func(c Context) (Context, error)
	calls     int
}

func (s *fakeStage) Name() string            { return s.name }
func (s *fakeStage) ShouldRun(c Context) bool { return s.shouldRun }
func (s *fakeStage) Run(_ context.Context, c Context) (Context, error) {
	s.calls++
	if s.run != nil {
		return s.run(c)
	}
	return c, nil
}

func TestOrchestratorSkippedStageLeavesContextUntouched(t *testing.T) {
	skipped := &fakeStage{name: "skipped", shouldRun: false, run: func(c Context) (Context, error) {
		c.Prompt = "mutated"
		return c, nil
	}}
	orch := NewOrchestrator(skipped)

	out := orch.Execute(context.Background(), Context{Prompt: "original"})
	if skipped.calls != 0 {
		t.Fatalf("skipped stage ran %d times", skipped.calls)
	}
	if out.Prompt != "original" {
		t.Fatalf("skipped stage changed the context: %q", out.Prompt)
	}
	if _, ok := out.Metrics.StageDurations["skipped"]; ok {
		t.Fatalf("skipped stage recorded a duration")
	}
}

func TestOrchestratorRecoverableErrorContinues(t *testing.T) {
	failing := &fakeStage{name: "failing", shouldRun: true, run: func(c Context) (Context, error) {
		return c.WithProcessed(), errors.New("boom")
	}}
	after := &fakeStage{name: "after", shouldRun: true}
	orch := NewOrchestrator(failing, after)

	out := orch.Execute(context.Background(), Context{})
	if after.calls != 1 {
		t.Fatalf("stage after recoverable failure did not run")
	}
	if len(out.Errors) != 1 || out.Errors[0].Severity != SeverityRecoverable {
		t.Fatalf("unexpected errors: %+v", out.Errors)
	}
}

func TestOrchestratorCriticalErrorAborts(t *testing.T) {
	failing := &fakeStage{name: "failing", shouldRun: true, run: func(c Context) (Context, error) {
		return c, Critical(errors.New("boom"))
	}}
	after := &fakeStage{name: "after", shouldRun: true}
	orch := NewOrchestrator(failing, after)

	out := orch.Execute(context.Background(), Context{})
	if after.calls != 0 {
		t.Fatalf("stage after critical failure ran")
	}
	if !out.HasCriticalError() {
		t.Fatalf("critical error not recorded")
	}
	if se := out.FirstCriticalError(); se == nil || se.Stage != "failing" {
		t.Fatalf("unexpected first critical error: %+v", se)
	}
	if out.Metrics.EndedAt.IsZero() {
		t.Fatalf("end timestamp not stamped after abort")
	}
}

func TestOrchestratorStageFailureKeepsInputContext(t *testing.T) {
	failing := &fakeStage{name: "failing", shouldRun: true, run: func(c Context) (Context, error) {
		c.Prompt = "partial"
		return c, errors.New("boom")
	}}
	orch := NewOrchestrator(failing)

	out := orch.Execute(context.Background(), Context{Prompt: "original"})
	if out.Prompt != "original" {
		t.Fatalf("failed stage's partial context leaked: %q", out.Prompt)
	}
}

func TestOrchestratorPanicIsIsolated(t *testing.T) {
	panicking := &fakeStage{name: "panicking", shouldRun: true, run: func(c Context) (Context, error) {
		panic("kaboom")
	}}
	after := &fakeStage{name: "after", shouldRun: true}
	orch := NewOrchestrator(panicking, after)

	out := orch.Execute(context.Background(), Context{})
	if after.calls != 1 {
		t.Fatalf("stage after panic did not run")
	}
	if len(out.Errors) != 1 {
		t.Fatalf("panic not recorded as stage error: %+v", out.Errors)
	}
}

func TestOrchestratorRecordsDurations(t *testing.T) {
	ok := &fakeStage{name: "ok", shouldRun: true}
	failing := &fakeStage{name: "failing", shouldRun: true, run: func(c Context) (Context, error) {
		return c, errors.New("boom")
	}}
	orch := NewOrchestrator(ok, failing)

	out := orch.Execute(context.Background(), Context{})
	for _, name := range []string{"ok", "failing"} {
		if _, found := out.Metrics.StageDurations[name]; !found {
			t.Fatalf("no duration recorded for %s", name)
		}
	}
	if out.Metrics.StartedAt.IsZero() || out.Metrics.EndedAt.IsZero() {
		t.Fatalf("request timestamps not stamped")
	}
}

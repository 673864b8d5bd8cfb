package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage is one unit of pipeline work: a cheap, side-effect-free run
// predicate plus a transformation that returns a replacement Context.
type Stage interface {
	Name() string
	ShouldRun(c Context) bool
	Run(ctx context.Context, c Context) (Context, error)
}

// Severity distinguishes errors the pipeline can continue past from
// errors that abort the remaining stages.
type Severity string

const (
	SeverityRecoverable Severity = "recoverable"
	SeverityCritical    Severity = "critical"
)

// StageError is one recorded stage failure.
type StageError struct {
	Stage    string
	Err      error
	Severity Severity
}

func (e StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }

type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }
func (e *criticalError) Unwrap() error { return e.err }

// Critical marks an error as aborting the remaining stages.
func Critical(err error) error {
	if err == nil {
		return nil
	}
	return &criticalError{err: err}
}

// IsCritical reports whether err carries the critical marker.
func IsCritical(err error) bool {
	var ce *criticalError
	return errors.As(err, &ce)
}

// runStage executes one stage and never lets a failure escape: an error
// or panic from the stage's own logic is returned for the orchestrator to
// record against the unchanged input context.
func runStage(ctx context.Context, s Stage, c Context) (out Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = c
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = s.Run(ctx, c)
	if err != nil {
		return c, err
	}
	return out, nil
}

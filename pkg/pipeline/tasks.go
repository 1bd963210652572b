package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
)

// ReturnTask prunes the environment down to an allow-list of fields,
// letting a pipeline hand back a clean result map.
type ReturnTask struct {
	fields []string
}

// Return creates a task that deletes every field not named in fields.
func Return(fields ...string) *ReturnTask {
	return &ReturnTask{fields: fields}
}

// Run implements the Task interface.
func (t *ReturnTask) Run(ctx context.Context, env *Env) error {
	env.Logger().Info("Pruning environment", zap.Strings("fields", t.fields))
	env.Prune(t.fields...)
	return nil
}

// Condition is a caller-supplied boolean check over the environment.
type Condition func(env *Env) bool

// AssertTask fails the pipeline when a condition over the environment does
// not hold. Used for validating inputs or as a lightweight test harness.
type AssertTask struct {
	condition Condition
	message   string
}

// Assert creates a task that evaluates the condition and raises an
// assertion error with the given message when it is false.
func Assert(condition Condition, message string) *AssertTask {
	return &AssertTask{condition: condition, message: message}
}

// Run implements the Task interface.
func (t *AssertTask) Run(ctx context.Context, env *Env) error {
	env.Logger().Info("Testing assertion", zap.String("message", t.message))
	if !t.condition(env) {
		env.Logger().Error("Assertion failed", zap.String("message", t.message))
		return errors.Assertion(t.message)
	}
	return nil
}

// FormatTask rewrites a field through a fmt verb or a caller-supplied
// function, optionally storing the result under a new name.
type FormatTask struct {
	name   string
	verb   string
	fn     func(any) any
	rename string
}

// FormatOption configures a FormatTask.
type FormatOption func(*FormatTask)

// WithRename stores the formatted value under a different field name.
func WithRename(name string) FormatOption {
	return func(t *FormatTask) {
		t.rename = name
	}
}

// Format creates a task that formats the named field with a fmt verb,
// e.g. "%.3f".
func Format(name, verb string, options ...FormatOption) *FormatTask {
	t := &FormatTask{name: name, verb: verb}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// FormatFunc creates a task that rewrites the named field through fn.
func FormatFunc(name string, fn func(any) any, options ...FormatOption) *FormatTask {
	t := &FormatTask{name: name, fn: fn}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Run implements the Task interface.
func (t *FormatTask) Run(ctx context.Context, env *Env) error {
	value, err := env.Get(t.name)
	if err != nil {
		return err
	}

	target := t.rename
	if target == "" {
		target = t.name
	}

	var formatted any
	if t.fn != nil {
		formatted = t.fn(value)
	} else {
		formatted = fmt.Sprintf(t.verb, value)
	}

	env.Set(target, formatted)
	env.Logger().Info("Formatted field",
		zap.String("from", t.name),
		zap.String("to", target))
	return nil
}

// PauseTask sleeps for a fixed duration, honoring context cancellation.
type PauseTask struct {
	duration time.Duration
}

// Pause creates a task that pauses the pipeline for the given duration.
func Pause(duration time.Duration) *PauseTask {
	return &PauseTask{duration: duration}
}

// Run implements the Task interface.
func (t *PauseTask) Run(ctx context.Context, env *Env) error {
	env.Logger().Info("Pausing", zap.Duration("duration", t.duration))
	select {
	case <-time.After(t.duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PrintEnvTask logs the current environment fields, for diagnostics.
type PrintEnvTask struct{}

// PrintEnv creates a task that prints the environment fields.
func PrintEnv() *PrintEnvTask {
	return &PrintEnvTask{}
}

// Run implements the Task interface.
func (t *PrintEnvTask) Run(ctx context.Context, env *Env) error {
	fmt.Println(env.Fields())
	return nil
}

// PrintStderrTask dumps the captured stderr of the last Execute, for
// diagnosing failed programs.
type PrintStderrTask struct{}

// PrintStderr creates a task that prints the captured error stream.
func PrintStderr() *PrintStderrTask {
	return &PrintStderrTask{}
}

// Run implements the Task interface.
func (t *PrintStderrTask) Run(ctx context.Context, env *Env) error {
	stderr, err := env.Stderr()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(stderr)
	if err != nil {
		return fmt.Errorf("reading stderr: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

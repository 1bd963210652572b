package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Task is a single configured operation in a pipeline. A task instance is
// built once, at pipeline-construction time, and invoked once per run with
// the shared environment. Tasks communicate only through the environment.
type Task interface {
	Run(ctx context.Context, env *Env) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context, env *Env) error

// Run implements the Task interface.
func (f TaskFunc) Run(ctx context.Context, env *Env) error {
	return f(ctx, env)
}

// taskName derives a readable name from the task's concrete type.
func taskName(t Task) string {
	name := fmt.Sprintf("%T", t)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

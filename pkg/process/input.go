package process

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/keywords"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// WriteInputTask writes a message to the stdin of the running process.
// ${name} placeholders in the message are resolved against the environment
// the same way command strings are.
type WriteInputTask struct {
	input string
}

// WriteInput creates a task that sends the given input to the running
// process. The caller supplies any trailing newline the program expects.
func WriteInput(input string) *WriteInputTask {
	return &WriteInputTask{input: input}
}

// Run implements the pipeline.Task interface.
func (t *WriteInputTask) Run(ctx context.Context, env *pipeline.Env) error {
	stdin, err := env.Stdin()
	if err != nil {
		return err
	}

	input, err := keywords.Resolve(t.input, env)
	if err != nil {
		return err
	}

	env.Logger().Info("Sending input to stdin", zap.String("input", input))
	if _, err := io.WriteString(stdin, input); err != nil {
		return fmt.Errorf("writing to process stdin: %w", err)
	}
	if flusher, ok := stdin.(interface{ Sync() error }); ok {
		if err := flusher.Sync(); err != nil {
			env.Logger().Debug("Stdin sync skipped", zap.Error(err))
		}
	}
	return nil
}

// CloseInputTask closes the stdin of the running process, signalling
// end-of-input to programs that read until EOF.
type CloseInputTask struct{}

// CloseInput creates a task that closes the running process's stdin.
func CloseInput() *CloseInputTask {
	return &CloseInputTask{}
}

// Run implements the pipeline.Task interface.
func (t *CloseInputTask) Run(ctx context.Context, env *pipeline.Env) error {
	stdin, err := env.Stdin()
	if err != nil {
		return err
	}
	env.Logger().Info("Closing process stdin")
	return stdin.Close()
}

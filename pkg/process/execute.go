// Package process manages external program lifecycles: spawning with
// captured standard streams, a watchdog timeout, exit-code checking and
// writing to a running program's stdin.
package process

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/keywords"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// ExecuteTask spawns an external program. The command string may contain
// ${name} placeholders resolved against the environment; the resolved
// string is split into argv tokens with shell-style quoting and passed
// directly to process creation, never through a shell.
//
// Execute stores the process and stream handles in the environment,
// silently overwriting any previous process. Spawning twice without an
// intervening CheckExitCode discards the earlier handle without releasing
// it.
type ExecuteTask struct {
	command       string
	timeout       time.Duration
	captureStdout bool
	captureStderr bool
}

// ExecuteOption configures an ExecuteTask.
type ExecuteOption func(*ExecuteTask)

// WithTimeout arms a watchdog that forcibly terminates the process if it
// has not exited after d.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(t *ExecuteTask) {
		t.timeout = d
	}
}

// WithoutStdout leaves the program's output stream attached to the parent
// instead of capturing it.
func WithoutStdout() ExecuteOption {
	return func(t *ExecuteTask) {
		t.captureStdout = false
	}
}

// WithoutStderr leaves the program's error stream attached to the parent
// instead of capturing it.
func WithoutStderr() ExecuteOption {
	return func(t *ExecuteTask) {
		t.captureStderr = false
	}
}

// Execute creates a task that runs the given command. Both standard streams
// are captured unless disabled by options.
func Execute(command string, options ...ExecuteOption) *ExecuteTask {
	t := &ExecuteTask{
		command:       command,
		captureStdout: true,
		captureStderr: true,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Run implements the pipeline.Task interface. It returns as soon as the
// process is spawned; waiting happens later, in CheckExitCode.
func (t *ExecuteTask) Run(ctx context.Context, env *pipeline.Env) error {
	command, err := keywords.Resolve(t.command, env)
	if err != nil {
		return err
	}

	args, err := shlex.Split(command)
	if err != nil {
		return errors.Precondition(fmt.Sprintf("tokenizing command %q", command), err)
	}
	if len(args) == 0 {
		return errors.Precondition(fmt.Sprintf("command %q resolves to no tokens", t.command), nil)
	}

	logger := env.Logger()
	logger.Info("Executing command", zap.String("command", command))

	cmd := exec.Command(args[0], args[1:]...)

	// The pipes are created here rather than through the exec package so
	// the parent keeps ownership of the read ends: captured output stays
	// readable after the process has been waited on.
	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	cmd.Stdin = stdinRead

	var stdout, stderr *os.File
	var stdoutReader, stderrReader *bufio.Reader

	if t.captureStdout {
		readEnd, writeEnd, err := os.Pipe()
		if err != nil {
			stdinRead.Close()
			stdinWrite.Close()
			return fmt.Errorf("creating stdout pipe: %w", err)
		}
		cmd.Stdout = writeEnd
		stdout = writeEnd
		stdoutReader = bufio.NewReader(readEnd)
	} else {
		cmd.Stdout = os.Stdout
	}

	if t.captureStderr {
		readEnd, writeEnd, err := os.Pipe()
		if err != nil {
			stdinRead.Close()
			stdinWrite.Close()
			if stdout != nil {
				stdout.Close()
			}
			return fmt.Errorf("creating stderr pipe: %w", err)
		}
		cmd.Stderr = writeEnd
		stderr = writeEnd
		stderrReader = bufio.NewReader(readEnd)
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		if stdout != nil {
			stdout.Close()
		}
		if stderr != nil {
			stderr.Close()
		}
		return errors.Execution(fmt.Sprintf("starting command %q", command), err)
	}

	// Close the child's ends in the parent so reads see EOF when the
	// process exits.
	stdinRead.Close()
	if stdout != nil {
		stdout.Close()
	}
	if stderr != nil {
		stderr.Close()
	}

	var watchdog *time.Timer
	if t.timeout > 0 {
		watchdog = newWatchdog(cmd.Process, t.timeout, logger)
	}

	var envStdout, envStderr pipeline.OutputReader
	if stdoutReader != nil {
		envStdout = stdoutReader
	}
	if stderrReader != nil {
		envStderr = stderrReader
	}
	env.SetProcess(cmd, stdinWrite, envStdout, envStderr, watchdog)

	logger.Info("Successfully executed command", zap.Int("pid", cmd.Process.Pid))
	return nil
}

// newWatchdog schedules a kill of the process after the timeout elapses.
// The timer runs against the monotonic clock and is stopped by
// CheckExitCode when the process exits first. Killing an already-exited
// process reports an error the watchdog ignores.
func newWatchdog(proc *os.Process, timeout time.Duration, logger *zap.Logger) *time.Timer {
	return time.AfterFunc(timeout, func() {
		logger.Warn("Watchdog timeout elapsed, terminating process",
			zap.Int("pid", proc.Pid),
			zap.Duration("timeout", timeout))
		if err := proc.Kill(); err != nil {
			logger.Debug("Watchdog kill skipped", zap.Error(err))
		}
	})
}

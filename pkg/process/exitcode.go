package process

import (
	"context"
	"fmt"
	"os/exec"
	"slices"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// CheckExitCodeTask blocks until the process spawned by Execute terminates,
// records its exit code in the environment and fails when the code is not
// in the accepted set.
type CheckExitCodeTask struct {
	ok []int
}

// CheckExitCode creates a task that accepts the given exit codes. With no
// arguments only zero is accepted.
func CheckExitCode(ok ...int) *CheckExitCodeTask {
	if len(ok) == 0 {
		ok = []int{0}
	}
	return &CheckExitCodeTask{ok: ok}
}

// Run implements the pipeline.Task interface. Calling it without a prior
// Execute fails immediately with a precondition error; nothing is waited on.
func (t *CheckExitCodeTask) Run(ctx context.Context, env *pipeline.Env) error {
	cmd, err := env.Process()
	if err != nil {
		return err
	}

	logger := env.Logger()
	logger.Info("Waiting for process to exit", zap.Int("pid", cmd.Process.Pid))

	code := 0
	if err := cmd.Wait(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			env.StopWatchdog()
			return errors.Execution("waiting for process", err)
		}
		// A watchdog-killed process reports -1 here, which is outside any
		// reasonable accepted set.
		code = exitErr.ExitCode()
	}

	env.StopWatchdog()
	env.SetExitCode(code)

	if !slices.Contains(t.ok, code) {
		logger.Error("Execute failed",
			zap.Ints("expected", t.ok),
			zap.Int("received", code))
		return errors.Execution(
			fmt.Sprintf("expected exit code in %v, received %d", t.ok, code), nil)
	}

	logger.Info("Exit code ok", zap.Int("exit_code", code))
	return nil
}

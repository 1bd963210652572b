package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

func TestExecuteResolvesKeywordsAndCapturesOutput(t *testing.T) {
	env := pipeline.NewEnv(map[string]any{"x": "42"})
	ctx := context.Background()

	require.NoError(t, Execute("echo ${x}").Run(ctx, env))
	require.NoError(t, CheckExitCode().Run(ctx, env))

	code, err := env.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	stdout, err := env.Stdout()
	require.NoError(t, err)
	line, err := stdout.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "42\n", line)
}

func TestExecuteUnresolvedKeyword(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := Execute("echo ${missing}").Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.ErrorIs(t, err, errors.ErrUnresolvedKeyword)

	// Nothing was spawned.
	_, err = env.Process()
	assert.ErrorIs(t, err, errors.ErrNoProcess)
}

func TestExecuteQuoting(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	// The quoted argument is passed as one token, and the metacharacters
	// inside it are not interpreted by a shell.
	require.NoError(t, Execute(`echo "a b; c"`).Run(ctx, env))
	require.NoError(t, CheckExitCode().Run(ctx, env))

	stdout, err := env.Stdout()
	require.NoError(t, err)
	line, err := stdout.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "a b; c\n", line)
}

func TestCheckExitCodeWithoutExecute(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := CheckExitCode().Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.ErrorIs(t, err, errors.ErrNoProcess)
}

func TestCheckExitCodeRejectsUnacceptedCode(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Execute("sh -c 'exit 3'").Run(ctx, env))
	err := CheckExitCode().Run(ctx, env)
	require.Error(t, err)
	assert.True(t, errors.IsExecution(err))
	assert.Contains(t, err.Error(), "received 3")

	code, cerr := env.ExitCode()
	require.NoError(t, cerr)
	assert.Equal(t, 3, code)
}

func TestCheckExitCodeAcceptedSet(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Execute("sh -c 'exit 3'").Run(ctx, env))
	require.NoError(t, CheckExitCode(0, 3).Run(ctx, env))
}

func TestWatchdogTerminatesSlowProcess(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, Execute("sleep 10", WithTimeout(200*time.Millisecond)).Run(ctx, env))

	// Execute returns before the process finishes; the wait happens here.
	err := CheckExitCode().Run(ctx, env)
	require.Error(t, err)
	assert.True(t, errors.IsExecution(err))
	assert.Less(t, time.Since(start), 5*time.Second)

	code, cerr := env.ExitCode()
	require.NoError(t, cerr)
	assert.NotEqual(t, 0, code)
}

func TestWatchdogCancelledOnFastExit(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Execute("echo done", WithTimeout(time.Minute)).Run(ctx, env))
	require.NoError(t, CheckExitCode().Run(ctx, env))
}

func TestWriteInput(t *testing.T) {
	env := pipeline.NewEnv(map[string]any{"name": "world"})
	ctx := context.Background()

	require.NoError(t, Execute("cat").Run(ctx, env))
	require.NoError(t, WriteInput("hello ${name}\n").Run(ctx, env))
	require.NoError(t, CloseInput().Run(ctx, env))
	require.NoError(t, CheckExitCode().Run(ctx, env))

	// Captured output stays readable after the process has been waited on.
	stdout, err := env.Stdout()
	require.NoError(t, err)
	line, err := stdout.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", line)
}

func TestWriteInputWithoutExecute(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := WriteInput("hi\n").Run(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoStdin)
}

func TestUncapturedStreams(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	task := Execute("echo ignored", WithoutStdout(), WithoutStderr())
	require.NoError(t, task.Run(ctx, env))
	require.NoError(t, CheckExitCode().Run(ctx, env))

	_, err := env.Stdout()
	assert.ErrorIs(t, err, errors.ErrNoOutput)
	_, err = env.Stderr()
	assert.ErrorIs(t, err, errors.ErrNoStderr)
}

package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/capture"
	"github.com/wehubfusion/Talaria/pkg/errors"
)

// OutputReader is the sequential view of captured output. Both
// bufio.Reader (process pipes) and capture.Buffer (channel traffic)
// satisfy it, which keeps extraction tasks agnostic to the source.
type OutputReader interface {
	io.Reader
	ReadString(delim byte) (string, error)
}

// Channel bundles an open socket with its line reader and the capture
// buffer that stands in for captured standard output.
type Channel struct {
	Conn   net.Conn
	Reader *bufio.Reader
	Out    *capture.Buffer
}

// Env is the execution state threaded through every task in a pipeline run.
//
// User and result values live in an open field map. The handles produced by
// built-in tasks (working directory, process, standard streams, exit code,
// channel) live in named slots; reading an unset slot returns a
// precondition error naming the task that should have run earlier.
//
// Slots holding live resources are exclusively owned: overwriting the
// process slot with a second Execute before checking the exit code discards
// the previous handle without releasing it. That is caller responsibility,
// not guarded here.
//
// Env is not safe for concurrent use. The runner drives exactly one task at
// a time, so no locking is needed.
type Env struct {
	fields map[string]any
	logger *zap.Logger

	workDir    string
	hasWorkDir bool

	proc     *exec.Cmd
	watchdog *time.Timer
	stdin    io.WriteCloser
	stdout   OutputReader
	stderr   OutputReader
	exitCode *int

	channel *Channel
}

// NewEnv creates an environment seeded with the given initial fields.
// A nil initial map yields an empty environment.
func NewEnv(initial map[string]any) *Env {
	fields := make(map[string]any, len(initial))
	for k, v := range initial {
		fields[k] = v
	}
	return &Env{
		fields: fields,
		logger: zap.NewNop(),
	}
}

// Logger returns the logger for the current run. It is never nil.
func (e *Env) Logger() *zap.Logger {
	return e.logger
}

// SetLogger replaces the run logger. A nil logger resets to a no-op logger.
func (e *Env) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
}

// Set stores a field value, overwriting any previous value.
func (e *Env) Set(name string, value any) {
	e.fields[name] = value
}

// Lookup returns a field value and whether it is present.
func (e *Env) Lookup(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Get returns a field value, or a precondition error if the field is absent.
func (e *Env) Get(name string) (any, error) {
	v, ok := e.fields[name]
	if !ok {
		return nil, errors.Precondition(fmt.Sprintf("field %q", name), errors.ErrMissingField)
	}
	return v, nil
}

// Delete removes a field. Deleting an absent field is a no-op.
func (e *Env) Delete(name string) {
	delete(e.fields, name)
}

// Fields returns a copy of the current field map.
func (e *Env) Fields() map[string]any {
	out := make(map[string]any, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Prune deletes every field whose name is not in keep.
func (e *Env) Prune(keep ...string) {
	wanted := make(map[string]struct{}, len(keep))
	for _, name := range keep {
		wanted[name] = struct{}{}
	}
	for name := range e.fields {
		if _, ok := wanted[name]; !ok {
			delete(e.fields, name)
		}
	}
}

// SetWorkDir records the working directory used by file tasks.
func (e *Env) SetWorkDir(dir string) {
	e.workDir = dir
	e.hasWorkDir = true
}

// WorkDir returns the working directory, or a precondition error if none
// has been set.
func (e *Env) WorkDir() (string, error) {
	if !e.hasWorkDir {
		return "", errors.Precondition("working directory", errors.ErrNoWorkDir)
	}
	return e.workDir, nil
}

// SetProcess installs a spawned process and its stream endpoints,
// overwriting any previous process. stdout and stderr may be nil when the
// corresponding stream is inherited rather than captured; the watchdog may
// be nil when no timeout was configured.
func (e *Env) SetProcess(cmd *exec.Cmd, stdin io.WriteCloser, stdout, stderr OutputReader, watchdog *time.Timer) {
	e.proc = cmd
	e.stdin = stdin
	e.watchdog = watchdog
	e.exitCode = nil
	if stdout != nil {
		e.stdout = stdout
	}
	if stderr != nil {
		e.stderr = stderr
	}
}

// Process returns the running process handle, or a precondition error if
// Execute has not run.
func (e *Env) Process() (*exec.Cmd, error) {
	if e.proc == nil {
		return nil, errors.Precondition("process", errors.ErrNoProcess)
	}
	return e.proc, nil
}

// Stdin returns the writable input stream of the running process.
func (e *Env) Stdin() (io.WriteCloser, error) {
	if e.stdin == nil {
		return nil, errors.Precondition("process stdin", errors.ErrNoStdin)
	}
	return e.stdin, nil
}

// Stdout returns the captured output stream of the last Execute or Connect.
func (e *Env) Stdout() (OutputReader, error) {
	if e.stdout == nil {
		return nil, errors.Precondition("captured output", errors.ErrNoOutput)
	}
	return e.stdout, nil
}

// Stderr returns the captured error stream of the last Execute.
func (e *Env) Stderr() (OutputReader, error) {
	if e.stderr == nil {
		return nil, errors.Precondition("captured stderr", errors.ErrNoStderr)
	}
	return e.stderr, nil
}

// StopWatchdog cancels the kill timer of the current process, if any.
func (e *Env) StopWatchdog() {
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

// SetExitCode records the exit code of the last waited-on process.
func (e *Env) SetExitCode(code int) {
	e.exitCode = &code
	e.Set("EXIT_CODE", code)
}

// ExitCode returns the recorded exit code, or a precondition error if no
// process has been waited on.
func (e *Env) ExitCode() (int, error) {
	if e.exitCode == nil {
		return 0, errors.Precondition("exit code", errors.ErrNoExitCode)
	}
	return *e.exitCode, nil
}

// SetChannel installs an open channel and routes its capture buffer into
// the captured-output slot. It returns a precondition error if a channel is
// already open; Disconnect must run first.
func (e *Env) SetChannel(ch *Channel) error {
	if e.channel != nil {
		return errors.Precondition("channel", errors.ErrChannelOpen)
	}
	e.channel = ch
	e.stdout = ch.Out
	return nil
}

// Channel returns the open channel, or a precondition error if Connect has
// not run.
func (e *Env) Channel() (*Channel, error) {
	if e.channel == nil {
		return nil, errors.Precondition("channel", errors.ErrNoChannel)
	}
	return e.channel, nil
}

// HasChannel reports whether a channel is currently open.
func (e *Env) HasChannel() bool {
	return e.channel != nil
}

// ClearChannel removes the channel slot. The capture buffer stays in the
// captured-output slot so already-received lines remain readable.
func (e *Env) ClearChannel() {
	e.channel = nil
}

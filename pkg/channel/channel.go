// Package channel manages duplex socket connections as pipeline tasks.
// Incoming traffic is modeled with the same capture-buffer convention the
// process package uses for captured output, so extraction tasks work
// unmodified against socket data.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/capture"
	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/keywords"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// ConnectTask opens a TCP connection and installs the channel handle, its
// line reader and a fresh capture buffer into the environment.
type ConnectTask struct {
	host      string
	port      string
	configErr error
}

// Connect creates a task that dials a combined "host:port" address.
// Placeholders in the address are resolved against the environment at run
// time. An address without a port is a configuration error, reported when
// the task runs and before any connection attempt.
func Connect(address string) *ConnectTask {
	if address == "" {
		return &ConnectTask{configErr: errors.Precondition("Connect requires an address or a host/port pair", nil)}
	}
	i := strings.LastIndex(address, ":")
	if i < 0 {
		return &ConnectTask{configErr: errors.Precondition(
			fmt.Sprintf("address %q missing port number", address), nil)}
	}
	return &ConnectTask{host: address[:i], port: address[i+1:]}
}

// ConnectHostPort creates a task that dials a separate host and port pair.
func ConnectHostPort(host, port string) *ConnectTask {
	if host == "" || port == "" {
		return &ConnectTask{configErr: errors.Precondition("Connect requires an address or a host/port pair", nil)}
	}
	return &ConnectTask{host: host, port: port}
}

// Run implements the pipeline.Task interface. It fails with a precondition
// error if a channel is already open; the existing channel is left
// untouched.
func (t *ConnectTask) Run(ctx context.Context, env *pipeline.Env) error {
	if t.configErr != nil {
		return t.configErr
	}
	if env.HasChannel() {
		return errors.Precondition("channel", errors.ErrChannelOpen)
	}

	host, err := keywords.Resolve(t.host, env)
	if err != nil {
		return err
	}
	port, err := keywords.Resolve(t.port, env)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(host, port)
	env.Logger().Info("Connecting", zap.String("address", address))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", address, err)
	}

	ch := &pipeline.Channel{
		Conn:   conn,
		Reader: bufio.NewReader(conn),
		Out:    capture.New(),
	}
	if err := env.SetChannel(ch); err != nil {
		conn.Close()
		return err
	}

	env.Logger().Info("Successfully connected", zap.String("address", address))
	return nil
}

// SendTask writes a message over the open channel.
type SendTask struct {
	message string
}

// Send creates a task that resolves placeholders in the message and writes
// all of its bytes to the socket. Framing is the caller's concern; include
// a trailing newline for line-oriented peers.
func Send(message string) *SendTask {
	return &SendTask{message: message}
}

// Run implements the pipeline.Task interface.
func (t *SendTask) Run(ctx context.Context, env *pipeline.Env) error {
	ch, err := env.Channel()
	if err != nil {
		return err
	}

	message, err := keywords.Resolve(t.message, env)
	if err != nil {
		return err
	}

	env.Logger().Info("Sending message", zap.String("message", message))
	if _, err := ch.Conn.Write([]byte(message)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// ReceiveTask reads newline-terminated lines from the open channel into the
// capture buffer.
type ReceiveTask struct {
	numLines int
}

// Receive creates a task that blocks until numLines lines have arrived.
// The lines are appended at the end of the capture buffer and the buffer's
// read cursor is left where it was, so sequential readers of captured
// output are unaffected by the append.
func Receive(numLines int) *ReceiveTask {
	return &ReceiveTask{numLines: numLines}
}

// Run implements the pipeline.Task interface.
func (t *ReceiveTask) Run(ctx context.Context, env *pipeline.Env) error {
	ch, err := env.Channel()
	if err != nil {
		return err
	}

	logger := env.Logger()
	logger.Info("Waiting to receive", zap.Int("lines", t.numLines))

	for i := 0; i < t.numLines; i++ {
		line, err := ch.Reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("receiving line %d of %d: %w", i+1, t.numLines, err)
		}
		logger.Debug("Received line", zap.String("line", strings.TrimRight(line, "\n")))
		ch.Out.WriteString(line)
	}

	logger.Info("Successfully received", zap.Int("lines", t.numLines))
	return nil
}

// DisconnectTask shuts down and closes the open channel.
type DisconnectTask struct{}

// Disconnect creates a task that closes the channel and removes it from
// the environment. It is idempotent: with no channel open it is a no-op.
func Disconnect() *DisconnectTask {
	return &DisconnectTask{}
}

// Run implements the pipeline.Task interface.
func (t *DisconnectTask) Run(ctx context.Context, env *pipeline.Env) error {
	if !env.HasChannel() {
		return nil
	}
	ch, err := env.Channel()
	if err != nil {
		return err
	}

	env.Logger().Info("Closing connection")
	if tcp, ok := ch.Conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			env.Logger().Debug("Socket shutdown skipped", zap.Error(err))
		}
	}
	if err := ch.Conn.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	env.ClearChannel()
	return nil
}

package channel

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// echoServer accepts connections and echoes each received line back,
// prefixed with "echo: ".
func echoServer(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				reader := bufio.NewReader(conn)
				for {
					line, err := reader.ReadString('\n')
					if err != nil {
						return
					}
					if _, err := conn.Write([]byte("echo: " + line)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return listener
}

func TestConnectSendReceiveDisconnect(t *testing.T) {
	listener := echoServer(t)
	env := pipeline.NewEnv(map[string]any{"greeting": "hello"})
	ctx := context.Background()

	require.NoError(t, Connect(listener.Addr().String()).Run(ctx, env))
	require.NoError(t, Send("${greeting}\n").Run(ctx, env))
	require.NoError(t, Receive(1).Run(ctx, env))
	require.NoError(t, Disconnect().Run(ctx, env))

	stdout, err := env.Stdout()
	require.NoError(t, err)
	line, err := stdout.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", line)
}

func TestConnectHostPortWithKeywords(t *testing.T) {
	listener := echoServer(t)
	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)

	env := pipeline.NewEnv(map[string]any{"host": host, "port": port})
	ctx := context.Background()

	require.NoError(t, ConnectHostPort("${host}", "${port}").Run(ctx, env))
	require.NoError(t, Disconnect().Run(ctx, env))
}

func TestConnectAddressMissingPort(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := Connect("localhost").Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.Contains(t, err.Error(), "missing port")
}

func TestConnectRequiresAddress(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := Connect("").Run(context.Background(), env)
	assert.True(t, errors.IsPrecondition(err))

	err = ConnectHostPort("", "").Run(context.Background(), env)
	assert.True(t, errors.IsPrecondition(err))
}

func TestConnectTwiceFailsAndKeepsFirstChannel(t *testing.T) {
	listener := echoServer(t)
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Connect(listener.Addr().String()).Run(ctx, env))

	err := Connect(listener.Addr().String()).Run(ctx, env)
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err))
	assert.ErrorIs(t, err, errors.ErrChannelOpen)

	// The first channel is still open and usable.
	require.NoError(t, Send("still here\n").Run(ctx, env))
	require.NoError(t, Receive(1).Run(ctx, env))
	require.NoError(t, Disconnect().Run(ctx, env))
}

func TestReceiveAppendsWithoutMovingCursor(t *testing.T) {
	listener := echoServer(t)
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Connect(listener.Addr().String()).Run(ctx, env))
	require.NoError(t, Send("one\ntwo\n").Run(ctx, env))
	require.NoError(t, Receive(2).Run(ctx, env))

	ch, err := env.Channel()
	require.NoError(t, err)
	assert.Equal(t, 0, ch.Out.Pos())
	assert.Equal(t, 2, strings.Count(ch.Out.String(), "\n"))

	// Read one line, then receive more; the cursor stays put.
	line, err := ch.Out.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: one\n", line)

	pos := ch.Out.Pos()
	require.NoError(t, Send("three\n").Run(ctx, env))
	require.NoError(t, Receive(1).Run(ctx, env))
	assert.Equal(t, pos, ch.Out.Pos())

	line, err = ch.Out.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: two\n", line)
	line, err = ch.Out.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: three\n", line)

	require.NoError(t, Disconnect().Run(ctx, env))
}

func TestSendAndReceiveWithoutConnect(t *testing.T) {
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	err := Send("hi\n").Run(ctx, env)
	assert.ErrorIs(t, err, errors.ErrNoChannel)

	err = Receive(1).Run(ctx, env)
	assert.ErrorIs(t, err, errors.ErrNoChannel)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	listener := echoServer(t)
	env := pipeline.NewEnv(nil)
	ctx := context.Background()

	require.NoError(t, Connect(listener.Addr().String()).Run(ctx, env))
	require.NoError(t, Disconnect().Run(ctx, env))
	require.NoError(t, Disconnect().Run(ctx, env))
}

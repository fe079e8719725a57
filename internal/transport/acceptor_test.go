package transport

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/config"
)

// echoHandler replies to every received line until the client disconnects.
type echoHandler struct{}

func (echoHandler) HandleSession(_ context.Context, conn *Conn) error {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return nil
		}
		if err := conn.WriteLine("echo: " + line); err != nil {
			return nil
		}
	}
}

// blockingHandler holds the session open until the acceptor shuts down.
type blockingHandler struct{}

func (blockingHandler) HandleSession(ctx context.Context, _ *Conn) error {
	<-ctx.Done()
	return nil
}

func testServerConfig() config.ServerConfig {
	// Port 0 binds an ephemeral port; tests read it back via Addr().
	return config.ServerConfig{Host: "127.0.0.1", Port: 0, WriteTimeout: time.Second}
}

func startAcceptor(t *testing.T, handler SessionHandler) *Acceptor {
	t.Helper()
	a := NewAcceptor(testServerConfig(), handler, zap.NewNop())

	go func() {
		if err := a.ListenAndServe(); err != nil {
			t.Errorf("listen: %v", err)
		}
	}()

	require.Eventually(t, func() bool {
		return a.Addr() != ""
	}, time.Second, 5*time.Millisecond, "acceptor never bound")
	t.Cleanup(a.Stop)
	return a
}

func TestAcceptor_ServesSessions(t *testing.T) {
	a := startAcceptor(t, echoHandler{})

	client, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello\n"))
	require.NoError(t, err)

	r := bufio.NewReader(client)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo: hello\n", line)
}

func TestAcceptor_ServesConcurrentClients(t *testing.T) {
	a := startAcceptor(t, echoHandler{})

	const clients = 5
	for i := 0; i < clients; i++ {
		client, err := net.Dial("tcp", a.Addr())
		require.NoError(t, err)
		defer client.Close()

		_, err = client.Write([]byte("ping\n"))
		require.NoError(t, err)

		r := bufio.NewReader(client)
		require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "echo: ping\n", line)
	}
}

func TestAcceptor_StopCancelsActiveSessions(t *testing.T) {
	a := startAcceptor(t, blockingHandler{})
	assert.True(t, a.IsRunning())

	client, err := net.Dial("tcp", a.Addr())
	require.NoError(t, err)
	defer client.Close()

	// Give the accept loop a beat to hand the connection off.
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; active session was not cancelled")
	}
	assert.False(t, a.IsRunning())

	// The listener is gone.
	_, err = net.Dial("tcp", a.Addr())
	assert.Error(t, err)
}

func TestAcceptor_StopIsIdempotent(t *testing.T) {
	a := startAcceptor(t, echoHandler{})
	a.Stop()
	a.Stop()
	assert.False(t, a.IsRunning())
}

func TestAcceptor_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: port, WriteTimeout: time.Second}
	a := NewAcceptor(cfg, echoHandler{}, zap.NewNop())

	err = a.ListenAndServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on")
	assert.False(t, a.IsRunning())
}

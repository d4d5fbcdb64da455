package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, conn net.Conn)

func (f handlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// echoHandler answers every line until the peer goes away.
var echoHandler = handlerFunc(func(_ context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if _, err := conn.Write([]byte(scanner.Text() + "\n")); err != nil {
			return
		}
	}
})

func startAcceptor(t *testing.T, h ConnHandler, maxSessions int) (*Acceptor, chan error) {
	t.Helper()
	a := NewAcceptor(h, maxSessions)
	require.NoError(t, a.Listen("127.0.0.1:0"))

	served := make(chan error, 1)
	go func() { served <- a.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, served
}

func TestAcceptor_ServesConcurrently(t *testing.T) {
	a, _ := startAcceptor(t, echoHandler, 4)

	conns := make([]net.Conn, 3)
	for i := range conns {
		conn, err := net.Dial("tcp", a.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		conns[i] = conn
	}

	for i, conn := range conns {
		msg := []byte{byte('a' + i), '\n'}
		_, err := conn.Write(msg)
		require.NoError(t, err)

		got := make([]byte, 2)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err = io.ReadFull(conn, got)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestAcceptor_LimitsSessions(t *testing.T) {
	var started atomic.Int32
	release := make(chan struct{})
	h := handlerFunc(func(context.Context, net.Conn) {
		started.Add(1)
		<-release
	})
	a, _ := startAcceptor(t, h, 1)

	for range 2 {
		conn, err := net.Dial("tcp", a.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
	}

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())

	release <- struct{}{}
	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 10*time.Millisecond)
	close(release)
}

func TestAcceptor_ShutdownWaitsForSessions(t *testing.T) {
	a, served := startAcceptor(t, echoHandler, 2)

	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return a.Active() == 1 }, time.Second, 10*time.Millisecond)

	shutdown := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown <- a.Shutdown(ctx)
	}()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, ErrAcceptorClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	select {
	case <-shutdown:
		t.Fatal("Shutdown returned while a session was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	conn.Close()
	select {
	case err := <-shutdown:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after the session ended")
	}

	_, err = net.DialTimeout("tcp", a.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestAcceptor_ShutdownForcesStragglers(t *testing.T) {
	var cancelled atomic.Bool
	h := handlerFunc(func(ctx context.Context, conn net.Conn) {
		// Ignores ctx while reading; only closing conn unblocks it.
		_, _ = io.Copy(io.Discard, conn)
		cancelled.Store(ctx.Err() != nil)
	})
	a, _ := startAcceptor(t, h, 2)

	conn, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return a.Active() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = a.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.True(t, cancelled.Load())
	assert.Equal(t, 0, a.Active())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestAcceptor_ServeWithoutListen(t *testing.T) {
	a := NewAcceptor(echoHandler, 1)
	assert.Error(t, a.Serve())
	assert.Nil(t, a.Addr())
}

func TestAcceptor_ListenAfterShutdown(t *testing.T) {
	a := NewAcceptor(echoHandler, 1)
	require.NoError(t, a.Shutdown(context.Background()))
	assert.ErrorIs(t, a.Listen("127.0.0.1:0"), ErrAcceptorClosed)
}

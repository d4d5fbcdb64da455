package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"correio-ftp/internal/core/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrAcceptorClosed is returned by Serve after Shutdown.
var ErrAcceptorClosed = errors.New("acceptor closed")

// ConnHandler serves one accepted connection. ServeConn returns when the session is
// over; ctx is cancelled when the acceptor forces its sessions to stop.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// Acceptor owns a listening socket and runs one goroutine per accepted connection,
// at most maxSessions at a time.
type Acceptor struct {
	handler ConnHandler
	sem     *semaphore.Weighted
	log     *zap.Logger

	// acceptCtx stops the accept loop, sessionCtx stops the sessions.
	acceptCtx     context.Context
	stopAccepting context.CancelFunc
	sessionCtx    context.Context
	stopSessions  context.CancelFunc

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewAcceptor creates a new Acceptor.
func NewAcceptor(handler ConnHandler, maxSessions int) *Acceptor {
	if maxSessions < 1 {
		maxSessions = 1
	}
	a := &Acceptor{
		handler: handler,
		sem:     semaphore.NewWeighted(int64(maxSessions)),
		log:     logger.Named("acceptor"),
		conns:   make(map[net.Conn]struct{}),
	}
	a.acceptCtx, a.stopAccepting = context.WithCancel(context.Background())
	a.sessionCtx, a.stopSessions = context.WithCancel(context.Background())
	return a
}

// Listen binds the control socket.
func (a *Acceptor) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		ln.Close()
		return ErrAcceptorClosed
	}
	a.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// ListenAndServe binds addr and serves it until Shutdown.
func (a *Acceptor) ListenAndServe(addr string) error {
	if err := a.Listen(addr); err != nil {
		return err
	}
	return a.Serve()
}

// Serve accepts connections until Shutdown. A connection beyond the session limit is
// not accepted until a slot frees up.
func (a *Acceptor) Serve() error {
	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()
	if ln == nil {
		return errors.New("acceptor is not listening")
	}

	a.log.Info("Accepting control connections", zap.String("address", ln.Addr().String()))
	for {
		if err := a.sem.Acquire(a.acceptCtx, 1); err != nil {
			return ErrAcceptorClosed
		}

		conn, err := ln.Accept()
		if err != nil {
			a.sem.Release(1)
			if a.isClosing() {
				return ErrAcceptorClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				a.log.Warn("Temporary accept failure", zap.Error(err))
				continue
			}
			return err
		}

		if !a.track(conn) {
			a.sem.Release(1)
			conn.Close()
			return ErrAcceptorClosed
		}
		go a.serve(conn)
	}
}

func (a *Acceptor) serve(conn net.Conn) {
	defer func() {
		a.untrack(conn)
		conn.Close()
		a.sem.Release(1)
		a.wg.Done()
	}()
	a.handler.ServeConn(a.sessionCtx, conn)
}

func (a *Acceptor) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn net.Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
}

func (a *Acceptor) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

// Active returns the number of sessions in flight.
func (a *Acceptor) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// Shutdown stops accepting and waits for in-flight sessions. When ctx is done first,
// the remaining sessions are cancelled and their connections closed, and ctx.Err()
// is returned once they have exited.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closing = true
	ln := a.ln
	a.mu.Unlock()

	a.stopAccepting()
	if ln != nil {
		ln.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.stopSessions()
		a.log.Info("All sessions finished")
		return nil
	case <-ctx.Done():
	}

	a.stopSessions()
	a.mu.Lock()
	stragglers := len(a.conns)
	for conn := range a.conns {
		conn.Close()
	}
	a.mu.Unlock()

	a.log.Warn("Closing sessions after grace period", zap.Int("sessions", stragglers))
	<-done
	return ctx.Err()
}

package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"correio-ftp/internal/core/wire"
)

var (
	// ErrListenerUsed is returned by Accept after the single connection was taken.
	ErrListenerUsed = errors.New("data channel already used")
	// ErrNotIPv4 is returned when the passive address cannot be encoded.
	ErrNotIPv4 = errors.New("passive mode requires an IPv4 address")
)

// PassiveListener is one negotiated, single-use data channel. It listens on an
// ephemeral port, hands out exactly one connection and then stops listening.
type PassiveListener struct {
	ln        *net.TCPListener
	advertise net.IP
	timeout   time.Duration

	mu     sync.Mutex
	used   bool
	closed bool
}

// OpenPassive binds an ephemeral port on bindIP. advertise, when set, replaces bindIP
// in the 227 reply. timeout bounds how long Accept waits; zero waits forever.
func OpenPassive(bindIP, advertise net.IP, timeout time.Duration) (*PassiveListener, error) {
	if bindIP.To4() == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, bindIP)
	}
	if advertise == nil {
		advertise = bindIP
	}
	if advertise.To4() == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIPv4, advertise)
	}

	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: bindIP, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open passive listener: %w", err)
	}

	return &PassiveListener{
		ln:        ln,
		advertise: advertise.To4(),
		timeout:   timeout,
	}, nil
}

// Addr returns the bound listening address.
func (p *PassiveListener) Addr() *net.TCPAddr {
	return p.ln.Addr().(*net.TCPAddr)
}

// PassiveReply returns the 227 line advertising this listener.
func (p *PassiveListener) PassiveReply() (string, error) {
	return wire.PassiveLine(p.advertise, p.Addr().Port)
}

// Accept blocks until one peer connects, the timeout elapses or ctx is done, and
// closes the listening socket in every case. Later calls return ErrListenerUsed.
func (p *PassiveListener) Accept(ctx context.Context) (net.Conn, error) {
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		return nil, ErrListenerUsed
	}
	p.used = true
	closed := p.closed
	p.mu.Unlock()

	defer p.Close()
	if closed {
		return nil, net.ErrClosed
	}

	if p.timeout > 0 {
		if err := p.ln.SetDeadline(time.Now().Add(p.timeout)); err != nil {
			return nil, fmt.Errorf("failed to arm passive deadline: %w", err)
		}
	}

	stop := context.AfterFunc(ctx, func() { p.Close() })
	defer stop()

	conn, err := p.ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("data connection aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("failed to accept data connection: %w", err)
	}
	return conn, nil
}

// Close releases the listening socket. It is safe to call more than once.
func (p *PassiveListener) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.ln.Close()
}

package handler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"correio-ftp/internal/core/logger"
	"correio-ftp/internal/core/wire"
	"correio-ftp/internal/features/ftp/adapters"
	"correio-ftp/internal/features/shipments/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the per-session protocol settings.
type Config struct {
	// PassiveHost replaces the control connection's local IP in PASV replies.
	PassiveHost string
	// DataTimeout bounds the wait for a data connection.
	DataTimeout time.Duration
	// IdleTimeout ends sessions that send no command for this long. Zero disables it.
	IdleTimeout time.Duration
}

// SessionHandler serves control connections against a shipment registry.
type SessionHandler struct {
	registry  ports.Registry
	cfg       Config
	advertise net.IP
}

// NewSessionHandler creates a new SessionHandler. An unparsable PassiveHost is ignored.
func NewSessionHandler(registry ports.Registry, cfg Config) *SessionHandler {
	h := &SessionHandler{registry: registry, cfg: cfg}
	if cfg.PassiveHost != "" {
		if ip := net.ParseIP(cfg.PassiveHost); ip != nil && ip.To4() != nil {
			h.advertise = ip.To4()
		} else {
			logger.Named("session").Warn("Ignoring non IPv4 passive host", zap.String("passive_host", cfg.PassiveHost))
		}
	}
	return h
}

// session is the state of one control connection. Commands are handled strictly
// one after another, so only the abort path touches it concurrently.
type session struct {
	h    *SessionHandler
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	log  *zap.Logger

	mu      sync.Mutex
	passive *adapters.PassiveListener
	data    net.Conn
}

// ServeConn runs the command loop until QUIT, a control I/O failure or ctx is done.
// The caller owns conn and closes it afterwards.
func (h *SessionHandler) ServeConn(ctx context.Context, conn net.Conn) {
	s := &session{
		h:    h,
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		log: logger.Named("session").With(
			zap.String("session_id", uuid.NewString()),
			zap.String("remote", conn.RemoteAddr().String()),
		),
	}
	defer s.release()

	stop := context.AfterFunc(ctx, s.abort)
	defer stop()

	s.log.Info("Control connection opened")
	if err := s.reply(wire.CodeServiceReady, "Bem-vindo ao Servidor FTP Correios."); err != nil {
		s.log.Warn("Failed to send greeting", zap.Error(err))
		return
	}

	for {
		if h.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}

		line, err := wire.ReadLine(s.r)
		if err != nil {
			s.logReadError(ctx, err)
			return
		}

		cmd := wire.ParseCommand(line)
		if cmd.Verb == "" {
			continue
		}
		s.log.Info("Command received", zap.String("command", cmd.String()))

		quit, err := s.dispatch(ctx, cmd)
		if err != nil {
			s.log.Warn("Control connection failed", zap.String("command", cmd.Verb), zap.Error(err))
			return
		}
		if quit {
			s.log.Info("Control connection closed by client")
			return
		}
	}
}

func (s *session) logReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.log.Info("Control connection closed")
	case ctx.Err() != nil:
		s.log.Info("Control connection aborted by shutdown")
	default:
		s.log.Warn("Control connection read failed", zap.Error(err))
	}
}

// dispatch runs one command. The returned error is a control channel failure and
// ends the session; per-command failures are reported to the peer instead.
func (s *session) dispatch(ctx context.Context, cmd wire.Command) (quit bool, err error) {
	switch cmd.Verb {
	case "USER":
		return false, s.reply(wire.CodeNeedPassword, "Usuario OK, precisa de senha.")
	case "PASS":
		return false, s.reply(wire.CodeLoggedIn, "Login do usuario efetuado.")
	case "TYPE":
		return false, s.reply(wire.CodeTypeOK, "Tipo mudado para I (Binary).")
	case "PASV":
		return false, s.handlePasv()
	case "STOR":
		return false, s.handleStor(ctx, cmd.Arg)
	case "RETR":
		return false, s.handleRetr(ctx, cmd.Arg)
	case "LIST":
		return false, s.handleList(ctx)
	case "STAT":
		return false, s.handleStat(cmd.Arg)
	case "QUIT":
		return true, s.reply(wire.CodeClosing, "Adeus.")
	default:
		return false, s.reply(wire.CodeNotImplemented, "Comando não implementado.")
	}
}

func (s *session) reply(code int, text string) error {
	return s.send(wire.NewReply(code, text))
}

func (s *session) send(r wire.Reply) error {
	if err := wire.WriteReply(s.w, r); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *session) sendLine(line string) error {
	if err := wire.WriteLine(s.w, line); err != nil {
		return err
	}
	return s.w.Flush()
}

// setPassive installs pl as the pending data channel, closing any previous one.
func (s *session) setPassive(pl *adapters.PassiveListener) {
	s.mu.Lock()
	prev := s.passive
	s.passive = pl
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// takePassive hands the pending data channel to a transfer. Each listener serves
// at most one transfer, so the session forgets it.
func (s *session) takePassive() *adapters.PassiveListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl := s.passive
	s.passive = nil
	return pl
}

// accept waits for the data connection of pl and tracks it for abort.
func (s *session) accept(ctx context.Context, pl *adapters.PassiveListener) (net.Conn, error) {
	conn, err := pl.Accept(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.data = conn
	s.mu.Unlock()
	return conn, nil
}

func (s *session) closeData(conn net.Conn) error {
	s.mu.Lock()
	if s.data == conn {
		s.data = nil
	}
	s.mu.Unlock()
	return conn.Close()
}

// abort unblocks every pending read, accept and copy of the session.
func (s *session) abort() {
	s.conn.Close()
	s.release()
}

// release closes the pending listener and any data connection.
func (s *session) release() {
	s.mu.Lock()
	pl, data := s.passive, s.data
	s.passive, s.data = nil, nil
	s.mu.Unlock()
	if pl != nil {
		pl.Close()
	}
	if data != nil {
		data.Close()
	}
}

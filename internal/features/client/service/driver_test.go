package service

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"correio-ftp/internal/core/server"
	"correio-ftp/internal/core/wire"
	"correio-ftp/internal/features/client/ports"
	ftphandler "correio-ftp/internal/features/ftp/handler"
	"correio-ftp/internal/features/shipments/adapters"
	shipmentservice "correio-ftp/internal/features/shipments/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind ports.EventKind
	text string
}

// recorder is an EventSink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) OnEvent(kind ports.EventKind, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, text})
}

func (r *recorder) texts(kind ports.EventKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e.text)
		}
	}
	return out
}

func startFTP(t *testing.T) (string, *shipmentservice.Registry) {
	t.Helper()
	store, err := adapters.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	registry := shipmentservice.NewRegistry(store, nil)

	acceptor := server.NewAcceptor(ftphandler.NewSessionHandler(registry, ftphandler.Config{DataTimeout: 2 * time.Second}), 8)
	require.NoError(t, acceptor.Listen("127.0.0.1:0"))
	go acceptor.Serve()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = acceptor.Shutdown(ctx)
	})
	return acceptor.Addr().String(), registry
}

func wait(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not complete")
		return Result{}
	}
}

func newDriver(t *testing.T, opts Options) (*Driver, *recorder) {
	t.Helper()
	rec := &recorder{}
	d := NewDriver(rec, opts)
	t.Cleanup(d.Close)
	return d, rec
}

func TestDriver_NotConnected(t *testing.T) {
	d, rec := newDriver(t, Options{})

	for _, ch := range []<-chan Result{d.Upload("x"), d.Download("0001", "y"), d.List(), d.Status("0001"), d.Disconnect()} {
		assert.ErrorIs(t, wait(t, ch).Err, ErrNotConnected)
	}
	assert.Len(t, rec.texts(ports.EventError), 5)
}

func TestDriver_LoginSequence(t *testing.T) {
	addr, _ := startFTP(t)
	d, rec := newDriver(t, Options{})

	res := wait(t, d.Connect(addr))
	require.NoError(t, res.Err)

	assert.Equal(t, []string{"USER anonymous", "PASS anonymous", "TYPE I"}, rec.texts(ports.EventSent))
	received := rec.texts(ports.EventReceived)
	require.Len(t, received, 4)
	assert.Contains(t, received[0], "220")
	assert.Contains(t, rec.texts(ports.EventSuccess), "Connected to "+addr)
}

func TestDriver_FullCycle(t *testing.T) {
	addr, registry := startFTP(t)
	d, rec := newDriver(t, Options{ReplyTimeout: 5 * time.Second})
	dir := t.TempDir()

	src := filepath.Join(dir, "invoice.pdf")
	content := []byte("%PDF-1.4 shipment body")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	// Queued without waiting: the worker runs them in order.
	connected := d.Connect(addr)
	uploaded := d.Upload(src)
	require.NoError(t, wait(t, connected).Err)
	up := wait(t, uploaded)
	require.NoError(t, up.Err)
	assert.Len(t, up.ID, 4)
	assert.Equal(t, int64(len(content)), up.Bytes)
	assert.Contains(t, rec.texts(ports.EventSent), "STOR invoice.pdf")

	st := wait(t, d.Status(up.ID))
	require.NoError(t, st.Err)
	require.Len(t, st.Lines, 3)
	assert.Equal(t, "  "+up.ID+": invoice.pdf (ENVIADA)", st.Lines[1])

	dest := filepath.Join(dir, "copy.pdf")
	down := wait(t, d.Download(up.ID, dest))
	require.NoError(t, down.Err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	shipment, ok := registry.Get(up.ID)
	require.True(t, ok)
	assert.Equal(t, "ENTREGUE", string(shipment.Status))

	list := wait(t, d.List())
	require.NoError(t, list.Err)
	require.Len(t, list.Listings, 1)
	assert.Equal(t, up.ID, list.Listings[0].ID)
	assert.Equal(t, "invoice.pdf", list.Listings[0].Filename)
	assert.Equal(t, "ENTREGUE", list.Listings[0].Status)

	require.NoError(t, wait(t, d.Disconnect()).Err)
	assert.ErrorIs(t, wait(t, d.List()).Err, ErrNotConnected)
}

func TestDriver_ListOnConnect(t *testing.T) {
	addr, _ := startFTP(t)
	d, _ := newDriver(t, Options{ListOnConnect: true})

	res := wait(t, d.Connect(addr))
	require.NoError(t, res.Err)
	assert.Empty(t, res.Listings)
}

func TestDriver_DownloadUnknownID(t *testing.T) {
	addr, _ := startFTP(t)
	d, _ := newDriver(t, Options{})
	require.NoError(t, wait(t, d.Connect(addr)).Err)

	dest := filepath.Join(t.TempDir(), "never.bin")
	res := wait(t, d.Download("9999", dest))

	var replyErr *ReplyError
	require.ErrorAs(t, res.Err, &replyErr)
	assert.Equal(t, wire.CodeNotFound, replyErr.Reply.Code)
	assert.NoFileExists(t, dest)

	// The session is still usable.
	assert.NoError(t, wait(t, d.List()).Err)
}

func TestDriver_StatusUnknownID(t *testing.T) {
	addr, _ := startFTP(t)
	d, _ := newDriver(t, Options{})
	require.NoError(t, wait(t, d.Connect(addr)).Err)

	var replyErr *ReplyError
	require.ErrorAs(t, wait(t, d.Status("0000")).Err, &replyErr)
	assert.True(t, replyErr.Reply.IsError())
}

func TestDriver_UploadMissingFile(t *testing.T) {
	addr, _ := startFTP(t)
	d, rec := newDriver(t, Options{})
	require.NoError(t, wait(t, d.Connect(addr)).Err)

	res := wait(t, d.Upload(filepath.Join(t.TempDir(), "missing.txt")))
	assert.ErrorIs(t, res.Err, os.ErrNotExist)
	assert.NotContains(t, rec.texts(ports.EventSent), "PASV")

	assert.NoError(t, wait(t, d.List()).Err)
}

func TestDriver_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	d, _ := newDriver(t, Options{DialTimeout: time.Second})
	assert.Error(t, wait(t, d.Connect(addr)).Err)
	assert.ErrorIs(t, wait(t, d.List()).Err, ErrNotConnected)
}

// scriptedServer logs in any client and answers PASV with reply.
func scriptedServer(t *testing.T, pasvReply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_ = wire.WriteLine(conn, "220 ready")
		for {
			line, err := wire.ReadLine(r)
			if err != nil {
				return
			}
			switch wire.ParseCommand(line).Verb {
			case "USER":
				_ = wire.WriteLine(conn, "331 password")
			case "PASS":
				_ = wire.WriteLine(conn, "230 ok")
			case "TYPE":
				_ = wire.WriteLine(conn, "200 binary")
			case "PASV":
				_ = wire.WriteLine(conn, pasvReply)
			case "QUIT":
				_ = wire.WriteLine(conn, "221 bye")
				return
			default:
				_ = wire.WriteLine(conn, "502 no")
			}
		}
	}()
	return ln.Addr().String()
}

func TestDriver_MalformedPassive(t *testing.T) {
	addr := scriptedServer(t, "227 Entering Passive Mode (somewhere).")
	d, _ := newDriver(t, Options{})
	require.NoError(t, wait(t, d.Connect(addr)).Err)

	assert.ErrorIs(t, wait(t, d.List()).Err, wire.ErrMalformedPassive)
	assert.NoError(t, wait(t, d.Disconnect()).Err)
}

func TestDriver_Closed(t *testing.T) {
	d := NewDriver(nil, Options{})
	d.Close()

	assert.ErrorIs(t, wait(t, d.List()).Err, ErrDriverClosed)
}

func TestReplyError(t *testing.T) {
	err := &ReplyError{Reply: wire.NewReply(550, "ID nao encontrado.")}
	assert.Equal(t, "unexpected reply: 550 ID nao encontrado.", err.Error())
}

package service

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"correio-ftp/internal/core/wire"
	"correio-ftp/internal/features/client/ports"
)

var (
	// ErrNotConnected is returned by operations issued without a control connection.
	ErrNotConnected = errors.New("not connected")
	// ErrDriverClosed is returned by operations issued after Close.
	ErrDriverClosed = errors.New("driver closed")
	// ErrMissingTrackingID is returned when a 226 upload reply carries no id.
	ErrMissingTrackingID = errors.New("upload reply has no tracking id")
)

var trackingIDPattern = regexp.MustCompile(`(\d{4})\.?\s*$`)

// ReplyError is a reply other than the one an operation expected, including
// every 4xx and 5xx reply.
type ReplyError struct {
	Reply wire.Reply
}

func (e *ReplyError) Error() string {
	return "unexpected reply: " + e.Reply.String()
}

// Options configure a Driver.
type Options struct {
	// DialTimeout bounds control and data connection setup.
	DialTimeout time.Duration
	// ReplyTimeout bounds each wait for a control reply. Zero disables it.
	ReplyTimeout time.Duration
	// ListOnConnect runs List right after a successful Connect.
	ListOnConnect bool
}

// Result is the outcome of one operation.
type Result struct {
	// ID is the tracking id assigned by Upload.
	ID string
	// Bytes is the payload size moved by Upload or Download.
	Bytes int64
	// Listings is filled by List, and by Connect with ListOnConnect.
	Listings []wire.Listing
	// Lines is the STAT reply.
	Lines []string
	// Err is nil when the operation succeeded.
	Err error
}

type job struct {
	name string
	run  func() (Result, error)
	out  chan Result
}

// Driver runs client operations on one worker goroutine that owns the control
// connection. Operations are queued and executed in submission order.
type Driver struct {
	sink ports.EventSink
	opts Options

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}
	done   chan struct{}

	// Owned by the worker.
	conn net.Conn
	r    *bufio.Reader
}

// NewDriver creates a Driver and starts its worker.
func NewDriver(sink ports.EventSink, opts Options) *Driver {
	if sink == nil {
		sink = ports.EventSinkFunc(func(ports.EventKind, string) {})
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	d := &Driver{
		sink: sink,
		opts: opts,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Connect dials addr and logs in anonymously, replacing any current connection.
func (d *Driver) Connect(addr string) <-chan Result {
	return d.submit("Connect", func() (Result, error) { return d.connect(addr) })
}

// Upload sends the file at path. The server stores it under its base name.
func (d *Driver) Upload(path string) <-chan Result {
	return d.submit("Upload", func() (Result, error) { return d.upload(path) })
}

// Download retrieves shipment id into dest.
func (d *Driver) Download(id, dest string) <-chan Result {
	return d.submit("Download", func() (Result, error) { return d.download(id, dest) })
}

// List fetches every shipment known to the server.
func (d *Driver) List() <-chan Result {
	return d.submit("List", d.list)
}

// Status queries the status of shipment id.
func (d *Driver) Status(id string) <-chan Result {
	return d.submit("Status", func() (Result, error) { return d.status(id) })
}

// Disconnect says goodbye and closes the control connection.
func (d *Driver) Disconnect() <-chan Result {
	return d.submit("Disconnect", d.disconnect)
}

// Close runs the operations already queued, closes the connection and stops
// the worker. Operations submitted afterwards fail with ErrDriverClosed.
func (d *Driver) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
	<-d.done
}

func (d *Driver) submit(name string, run func() (Result, error)) <-chan Result {
	out := make(chan Result, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		out <- Result{Err: ErrDriverClosed}
		close(out)
		return out
	}
	d.queue = append(d.queue, job{name: name, run: run, out: out})
	d.mu.Unlock()

	d.signal()
	return out
}

func (d *Driver) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				d.hangup()
				return
			}
			<-d.wake
			continue
		}
		j := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.execute(j)
	}
}

func (d *Driver) execute(j job) {
	res, err := j.run()
	if err != nil {
		res.Err = err
		d.emit(ports.EventError, fmt.Sprintf("%s failed: %v", j.name, err))
		if !keepsConnection(err) {
			d.hangup()
		}
	}
	j.out <- res
	close(j.out)
}

func (d *Driver) emit(kind ports.EventKind, text string) {
	d.sink.OnEvent(kind, text)
}

// localError marks failures that never touched the network.
type localError struct{ err error }

func (e localError) Error() string { return e.err.Error() }
func (e localError) Unwrap() error { return e.err }

// keepsConnection reports whether the control channel is still in sync after err.
func keepsConnection(err error) bool {
	var replyErr *ReplyError
	var le localError
	return errors.As(err, &replyErr) ||
		errors.As(err, &le) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrMissingTrackingID) ||
		errors.Is(err, wire.ErrMalformedPassive) ||
		errors.Is(err, wire.ErrMalformedListing)
}

func (d *Driver) connect(addr string) (Result, error) {
	if d.conn != nil {
		d.emit(ports.EventInfo, "Closing previous connection")
		d.hangup()
	}

	d.emit(ports.EventInfo, "Connecting to "+addr)
	conn, err := net.DialTimeout("tcp", addr, d.opts.DialTimeout)
	if err != nil {
		return Result{}, err
	}
	d.conn = conn
	d.r = bufio.NewReader(conn)

	if err := d.login(); err != nil {
		d.hangup()
		return Result{}, err
	}
	d.emit(ports.EventSuccess, "Connected to "+addr)

	if !d.opts.ListOnConnect {
		return Result{}, nil
	}
	return d.list()
}

func (d *Driver) login() error {
	if _, err := d.expect(wire.CodeServiceReady); err != nil {
		return err
	}
	if _, err := d.command("USER anonymous", wire.CodeNeedPassword); err != nil {
		return err
	}
	if _, err := d.command("PASS anonymous", wire.CodeLoggedIn); err != nil {
		return err
	}
	_, err := d.command("TYPE I", wire.CodeTypeOK)
	return err
}

func (d *Driver) upload(path string) (Result, error) {
	if d.conn == nil {
		return Result{}, ErrNotConnected
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, localError{err}
	}
	defer f.Close()

	addr, err := d.passive()
	if err != nil {
		return Result{}, err
	}
	name := filepath.Base(path)
	if _, err := d.command("STOR "+name, wire.CodeOpeningData); err != nil {
		return Result{}, err
	}

	data, err := d.dialData(addr)
	if err != nil {
		// The server still answers once its accept gives up.
		d.drainFinal()
		return Result{}, err
	}
	n, copyErr := io.Copy(data, f)
	closeErr := data.Close()

	final, err := d.expect(wire.CodeTransferDone)
	if copyErr != nil {
		return Result{Bytes: n}, copyErr
	}
	if closeErr != nil {
		return Result{Bytes: n}, closeErr
	}
	if err != nil {
		return Result{Bytes: n}, err
	}

	m := trackingIDPattern.FindStringSubmatch(final.Text())
	if m == nil {
		return Result{Bytes: n}, fmt.Errorf("%w: %q", ErrMissingTrackingID, final.Text())
	}
	d.emit(ports.EventSuccess, fmt.Sprintf("Uploaded %s (%d bytes), tracking id %s", name, n, m[1]))
	return Result{ID: m[1], Bytes: n}, nil
}

func (d *Driver) download(id, dest string) (Result, error) {
	if d.conn == nil {
		return Result{}, ErrNotConnected
	}

	addr, err := d.passive()
	if err != nil {
		return Result{}, err
	}
	if _, err := d.command("RETR "+id, wire.CodeOpeningData); err != nil {
		return Result{}, err
	}

	data, err := d.dialData(addr)
	if err != nil {
		d.drainFinal()
		return Result{}, err
	}

	n, err := receiveFile(data, dest)
	data.Close()
	if err != nil {
		d.drainFinal()
		return Result{Bytes: n}, err
	}

	if _, err := d.expect(wire.CodeTransferDone); err != nil {
		os.Remove(dest)
		return Result{Bytes: n}, err
	}
	d.emit(ports.EventSuccess, fmt.Sprintf("Downloaded %s to %s (%d bytes)", id, dest, n))
	return Result{Bytes: n}, nil
}

// receiveFile copies r into dest, removing dest when the copy fails.
func receiveFile(r io.Reader, dest string) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, localError{err}
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return n, err
	}
	return n, nil
}

func (d *Driver) list() (Result, error) {
	if d.conn == nil {
		return Result{}, ErrNotConnected
	}

	addr, err := d.passive()
	if err != nil {
		return Result{}, err
	}
	if _, err := d.command("LIST", wire.CodeOpeningData); err != nil {
		return Result{}, err
	}

	data, err := d.dialData(addr)
	if err != nil {
		d.drainFinal()
		return Result{}, err
	}

	var lines []string
	scanner := bufio.NewScanner(data)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	data.Close()
	if err := scanner.Err(); err != nil {
		d.drainFinal()
		return Result{}, err
	}

	if _, err := d.expect(wire.CodeTransferDone); err != nil {
		return Result{}, err
	}

	listings := make([]wire.Listing, 0, len(lines))
	for _, line := range lines {
		if line == wire.EmptyListing || line == "" {
			continue
		}
		l, err := wire.ParseListing(line)
		if err != nil {
			d.emit(ports.EventWarn, "Skipping listing line: "+err.Error())
			continue
		}
		listings = append(listings, l)
	}
	d.emit(ports.EventSuccess, fmt.Sprintf("Listed %d shipments", len(listings)))
	return Result{Listings: listings}, nil
}

func (d *Driver) status(id string) (Result, error) {
	if d.conn == nil {
		return Result{}, ErrNotConnected
	}

	reply, err := d.command("STAT "+id, wire.CodeStatus)
	if err != nil {
		return Result{}, err
	}
	d.emit(ports.EventSuccess, "Status received for "+id)
	return Result{Lines: reply.Lines}, nil
}

func (d *Driver) disconnect() (Result, error) {
	if d.conn == nil {
		return Result{}, ErrNotConnected
	}
	d.hangup()
	d.emit(ports.EventSuccess, "Disconnected")
	return Result{}, nil
}

// hangup sends a best-effort QUIT and closes the control connection.
func (d *Driver) hangup() {
	if d.conn == nil {
		return
	}
	_ = d.conn.SetDeadline(time.Now().Add(time.Second))
	if err := d.send("QUIT"); err == nil {
		_, _ = d.readReply()
	}
	d.conn.Close()
	d.conn = nil
	d.r = nil
}

// passive sends PASV and returns the advertised data address.
func (d *Driver) passive() (*net.TCPAddr, error) {
	reply, err := d.command("PASV", wire.CodePassive)
	if err != nil {
		return nil, err
	}
	return wire.ParsePassive(reply.Lines[0])
}

func (d *Driver) dialData(addr *net.TCPAddr) (net.Conn, error) {
	d.emit(ports.EventInfo, "Opening data connection to "+addr.String())
	return net.DialTimeout("tcp", addr.String(), d.opts.DialTimeout)
}

// drainFinal consumes the final reply of a failed transfer so the next
// command reads its own reply.
func (d *Driver) drainFinal() {
	if _, err := d.readReply(); err != nil {
		d.emit(ports.EventWarn, "No final reply after failed transfer: "+err.Error())
	}
}

func (d *Driver) command(line string, want int) (wire.Reply, error) {
	if err := d.send(line); err != nil {
		return wire.Reply{}, err
	}
	return d.expect(want)
}

func (d *Driver) send(line string) error {
	d.emit(ports.EventSent, line)
	return wire.WriteLine(d.conn, line)
}

func (d *Driver) expect(want int) (wire.Reply, error) {
	reply, err := d.readReply()
	if err != nil {
		return reply, err
	}
	if reply.Code != want {
		return reply, &ReplyError{Reply: reply}
	}
	return reply, nil
}

func (d *Driver) readReply() (wire.Reply, error) {
	if d.opts.ReplyTimeout > 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.opts.ReplyTimeout))
	}
	reply, err := wire.ReadReply(d.r)
	for _, line := range reply.Lines {
		d.emit(ports.EventReceived, line)
	}
	return reply, err
}

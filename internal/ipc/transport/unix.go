package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mithrel/msgport/internal/ipc"
	"github.com/mithrel/msgport/pkg/api"
)

// readTimeout is how long a local port waits for a connected sender to
// deliver its frame. A well-behaved sender writes immediately.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing the ack back to the sender.
const writeTimeout = 10 * time.Second

// drainTimeout is how long an invalidated port still waits for the ack of
// a message its receiver already took.
const drainTimeout = time.Second

// dialTimeout bounds resolving a name when the caller gives no timeout.
const dialTimeout = 5 * time.Second

var _ api.Facility = (*UnixFacility)(nil)

// UnixFacility implements api.Facility with one Unix domain socket per
// registered name. Registration is an exclusive flock on the name's lock
// file; the kernel drops it when the owner exits, so a crashed owner never
// leaves the name held.
type UnixFacility struct {
	dir    string
	logger *slog.Logger
	listen ListenerFunc
}

// NewUnixFacility creates a facility rooted at dir, which must exist.
func NewUnixFacility(dir string, logger *slog.Logger) *UnixFacility {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnixFacility{dir: dir, logger: logger, listen: unixListenerFunc}
}

// SetListenerFunc replaces how local ports bind their socket. A nil fn
// restores the default UnixListener. Call it before CreateLocal.
func (f *UnixFacility) SetListenerFunc(fn ListenerFunc) {
	if fn == nil {
		fn = unixListenerFunc
	}
	f.listen = fn
}

// Dir returns the runtime directory holding sockets and locks.
func (f *UnixFacility) Dir() string { return f.dir }

// CreateLocal registers name and starts accepting senders.
func (f *UnixFacility) CreateLocal(name string, recv api.Receiver, info any) (api.Handle, error) {
	if name == "" {
		return nil, errors.New("empty port name")
	}
	if recv == nil {
		return nil, errors.New("nil receiver")
	}

	lock, err := acquireLock(ipc.LockPath(f.dir, name))
	if err != nil {
		return nil, err
	}

	sock := ipc.SocketPath(f.dir, name)
	ln, err := f.listen(sock, f.logger.With("port", name)).Listen()
	if err != nil {
		lock.Close()
		return nil, err
	}

	owner := api.Owner{Name: name, PID: os.Getpid(), Created: time.Now().UTC()}
	if err := writeOwner(lock, owner); err != nil {
		ln.Close()
		lock.Close()
		return nil, fmt.Errorf("writing owner record for %q: %w", name, err)
	}

	p := &localPort{
		f:      f,
		name:   name,
		recv:   recv,
		info:   info,
		lock:   lock,
		ln:     ln,
		valid:  true,
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]bool),
	}
	go p.serve()

	f.logger.Debug("local port registered", "port", name, "path", sock)
	return p, nil
}

// CreateRemote resolves name by connecting to its socket. The returned
// handle owns that connection until Invalidate. A full accept backlog
// (EAGAIN) is a transport error, not a missing name.
func (f *UnixFacility) CreateRemote(name string, timeout time.Duration) (api.Handle, error) {
	if name == "" {
		return nil, errors.New("empty port name")
	}
	if timeout <= 0 {
		timeout = dialTimeout
	}
	sock := ipc.SocketPath(f.dir, name)
	conn, err := net.DialTimeout("unix", sock, timeout)
	if err != nil {
		var ne net.Error
		switch {
		case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ECONNREFUSED):
			return nil, fmt.Errorf("%w: %q", api.ErrNoSuchPort, name)
		case errors.As(err, &ne) && ne.Timeout():
			return nil, fmt.Errorf("%w: %q: %v", api.ErrResolveTimeout, name, err)
		}
		return nil, fmt.Errorf("resolving %q: %w", name, err)
	}
	return &remotePort{name: name, conn: conn, valid: true}, nil
}

func (f *UnixFacility) IsValid(h api.Handle) bool {
	switch p := h.(type) {
	case *localPort:
		return p.isValid()
	case *remotePort:
		return p.isValid()
	default:
		return false
	}
}

func (f *UnixFacility) Invalidate(h api.Handle) {
	switch p := h.(type) {
	case *localPort:
		p.invalidate()
	case *remotePort:
		p.invalidate()
	}
}

func (f *UnixFacility) OnInvalidate(h api.Handle, fn func(api.Handle)) {
	switch p := h.(type) {
	case *localPort:
		p.onInvalidate(fn)
	case *remotePort:
		// Remote handles are released by their sender; nobody observes them.
	}
}

// Send writes one frame and waits for the receiver's ack.
func (f *UnixFacility) Send(h api.Handle, id int32, data []byte, sendTimeout, recvTimeout time.Duration) api.Outcome {
	p, ok := h.(*remotePort)
	if !ok {
		return api.OutcomeInvalid
	}
	conn := p.connection()
	if conn == nil {
		return api.OutcomeInvalid
	}

	_ = conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := writeFrame(conn, id, data); err != nil {
		f.logger.Debug("send failed", "port", p.name, "error", err)
		return outcomeFor(err, api.OutcomeSendTimeout)
	}

	_ = conn.SetReadDeadline(time.Now().Add(recvTimeout))
	accepted, err := readAck(conn)
	if err != nil {
		f.logger.Debug("ack failed", "port", p.name, "error", err)
		return outcomeFor(err, api.OutcomeReceiveTimeout)
	}
	if !accepted {
		return api.OutcomeBecameInvalid
	}
	return api.OutcomeSuccess
}

// Status reports who holds name. It resolves the name first so a lock file
// left behind by a previous owner is never reported as live.
func (f *UnixFacility) Status(name string) (api.Owner, error) {
	h, err := f.CreateRemote(name, 0)
	if err != nil {
		return api.Owner{}, err
	}
	f.Invalidate(h)

	data, err := os.ReadFile(ipc.LockPath(f.dir, name))
	if err != nil {
		return api.Owner{}, fmt.Errorf("reading owner record for %q: %w", name, err)
	}
	if len(data) == 0 {
		return api.Owner{}, fmt.Errorf("owner record for %q not written yet", name)
	}
	o, err := unmarshalOwner(data)
	if err != nil {
		return api.Owner{}, fmt.Errorf("decoding owner record for %q: %w", name, err)
	}
	return o, nil
}

// outcomeFor maps a connection error to a send outcome. Deadline expiry
// means the phase timed out; a vanished peer means the port died under us.
func outcomeFor(err error, onTimeout api.Outcome) api.Outcome {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return onTimeout
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, unix.EPIPE),
		errors.Is(err, unix.ECONNRESET),
		errors.Is(err, net.ErrClosed):
		return api.OutcomeBecameInvalid
	default:
		return api.OutcomeTransportError
	}
}

func acquireLock(path string) (*os.File, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock %s: %w", path, err)
	}
	if err := unix.Flock(int(fd.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		fd.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, api.ErrNameInUse
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return fd, nil
}

func writeOwner(lock *os.File, o api.Owner) error {
	data, err := marshalOwner(o)
	if err != nil {
		return err
	}
	if err := lock.Truncate(0); err != nil {
		return err
	}
	_, err = lock.WriteAt(data, 0)
	return err
}

// localPort is the receiving side of a registered name.
type localPort struct {
	f    *UnixFacility
	name string
	recv api.Receiver
	info any
	lock *os.File
	ln   net.Listener

	mu        sync.Mutex
	valid     bool
	closed    chan struct{}
	conns     map[net.Conn]bool // true once the conn's frame was dispatched
	observers []func(api.Handle)

	// dispatchMu serializes calls into recv; its acquisition order is the
	// intake order.
	dispatchMu sync.Mutex
}

func (p *localPort) Name() string { return p.name }
func (p *localPort) Local() bool  { return true }

func (p *localPort) isValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valid
}

func (p *localPort) serve() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !p.isValid() {
				return
			}
			p.f.logger.Error("accept failed, invalidating port", "port", p.name, "error", err)
			p.invalidate()
			return
		}
		if !p.track(conn) {
			conn.Close()
			return
		}
		go func() {
			defer p.untrack(conn)
			p.handle(conn)
		}()
	}
}

func (p *localPort) track(conn net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid {
		return false
	}
	p.conns[conn] = false
	return true
}

// awaitAck marks conn as waiting on the receiver, so invalidate leaves it
// open for the ack.
func (p *localPort) awaitAck(conn net.Conn) {
	p.mu.Lock()
	if _, ok := p.conns[conn]; ok {
		p.conns[conn] = true
	}
	p.mu.Unlock()
}

func (p *localPort) untrack(conn net.Conn) {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
	conn.Close()
}

// handle processes one frame: read, dispatch, wait for the ack, reply.
func (p *localPort) handle(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	id, payload, err := readFrame(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			p.f.logger.Debug("invalid frame", "port", p.name, "error", err)
		}
		return
	}

	acked := make(chan bool, 1)
	var once sync.Once
	in := api.Inbound{
		ID:      id,
		Payload: payload,
		Info:    p.info,
		Ack: func(accepted bool) {
			once.Do(func() { acked <- accepted })
		},
	}

	accepted := false
	if p.dispatch(conn, in) {
		select {
		case accepted = <-acked:
		case <-p.closed:
			select {
			case accepted = <-acked:
			case <-time.After(drainTimeout):
				// Closing the connection tells the sender the port died.
				return
			}
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeAck(conn, accepted); err != nil {
		p.f.logger.Debug("failed to write ack", "port", p.name, "error", err)
	}
}

func (p *localPort) dispatch(conn net.Conn, in api.Inbound) bool {
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	if !p.isValid() {
		return false
	}
	p.awaitAck(conn)
	p.recv(in)
	return true
}

func (p *localPort) onInvalidate(fn func(api.Handle)) {
	p.mu.Lock()
	if p.valid {
		p.observers = append(p.observers, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn(p)
}

// invalidate stops intake, waits out any dispatch in progress, then
// releases the name. No recv call starts after it returns. Connections
// whose message was already dispatched stay open for up to drainTimeout so
// the receiver can still ack it.
func (p *localPort) invalidate() {
	p.mu.Lock()
	if !p.valid {
		p.mu.Unlock()
		return
	}
	p.valid = false
	close(p.closed)
	idle := make([]net.Conn, 0, len(p.conns))
	for c, awaiting := range p.conns {
		if !awaiting {
			idle = append(idle, c)
		}
	}
	observers := p.observers
	p.observers = nil
	p.mu.Unlock()

	p.ln.Close()
	for _, c := range idle {
		c.Close()
	}

	// Wait out a dispatch already holding the intake.
	p.dispatchMu.Lock()
	p.dispatchMu.Unlock() //nolint:staticcheck

	_ = p.lock.Truncate(0)
	p.lock.Close()

	p.f.logger.Debug("local port invalidated", "port", p.name)
	for _, fn := range observers {
		fn(p)
	}
}

// remotePort is a transient sender-side handle holding one connection.
type remotePort struct {
	name string

	mu    sync.Mutex
	valid bool
	conn  net.Conn
}

func (p *remotePort) Name() string { return p.name }
func (p *remotePort) Local() bool  { return false }

func (p *remotePort) isValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valid && p.conn != nil
}

func (p *remotePort) connection() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid {
		return nil
	}
	return p.conn
}

func (p *remotePort) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.valid {
		return
	}
	p.valid = false
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

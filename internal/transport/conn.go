package transport

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/edwingeng/deque/v2"
	"github.com/jackc/puddle/v2"
	"github.com/pkg/errors"

	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

// maxQuietLedger bounds the quiet requests remembered per connection when
// the caller never issues a request that reads a reply.
const maxQuietLedger = 4096

var ErrConnectionReset = errors.New("connection reset")

// Conn is a connection held exclusively for one request/response cycle.
type Conn interface {
	protocol.Conn
	// Release hands the connection back to its pool, or discards it when it
	// has been reset.
	Release()
}

type conn struct {
	nc    net.Conn
	rw    *bufio.ReadWriter
	quiet *deque.Deque[protocol.QuietRequest]
}

func newConn(nc net.Conn) *conn {
	return &conn{
		nc:    nc,
		rw:    bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)),
		quiet: deque.NewDeque[protocol.QuietRequest](),
	}
}

// lease binds a pooled conn to the caller until Release or Reset.
type lease struct {
	server  *Server
	res     *puddle.Resource[*conn]
	c       *conn
	timeout time.Duration
}

func (l *lease) deadline() error {
	if l.timeout <= 0 {
		return nil
	}
	return l.c.nc.SetDeadline(time.Now().Add(l.timeout))
}

func (l *lease) Send(b []byte) error {
	if l.res == nil {
		return ErrConnectionReset
	}
	if err := l.deadline(); err != nil {
		return errors.Wrapf(err, "set deadline on %s", l.server.addr)
	}
	if _, err := l.c.rw.Write(b); err != nil {
		return errors.Wrapf(err, "write to %s", l.server.addr)
	}
	if err := l.c.rw.Flush(); err != nil {
		return errors.Wrapf(err, "flush to %s", l.server.addr)
	}
	return nil
}

func (l *lease) SendVectored(bufs net.Buffers) error {
	if l.res == nil {
		return ErrConnectionReset
	}
	if err := l.deadline(); err != nil {
		return errors.Wrapf(err, "set deadline on %s", l.server.addr)
	}
	if err := l.c.rw.Flush(); err != nil {
		return errors.Wrapf(err, "flush to %s", l.server.addr)
	}
	if _, err := bufs.WriteTo(l.c.nc); err != nil {
		return errors.Wrapf(err, "writev to %s", l.server.addr)
	}
	return nil
}

func (l *lease) ReadLine(buf []byte) (int, error) {
	if l.res == nil {
		return 0, ErrConnectionReset
	}
	line, err := l.c.rw.ReadSlice('\n')
	if err == bufio.ErrBufferFull || (err == nil && len(line) > len(buf)) {
		return 0, protocol.ErrLineTooLong
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read from %s", l.server.addr)
	}
	return copy(buf, line), nil
}

func (l *lease) ReadFull(buf []byte) error {
	if l.res == nil {
		return ErrConnectionReset
	}
	if _, err := io.ReadFull(l.c.rw, buf); err != nil {
		return errors.Wrapf(err, "read from %s", l.server.addr)
	}
	return nil
}

// Reset destroys the underlying connection. Whatever was buffered or half
// written goes with it, as do the quiet requests still awaiting a reply.
func (l *lease) Reset() {
	if l.res == nil {
		return
	}
	dropped := l.c.quiet.Len()
	for l.c.quiet.Len() > 0 {
		l.c.quiet.PopBack()
	}
	l.server.log.Warn("connection reset", slog.String("server", l.server.addr), slog.Int("quiet_dropped", dropped))
	l.res.Destroy()
	l.res = nil
}

func (l *lease) Release() {
	if l.res == nil {
		return
	}
	if l.timeout > 0 {
		//nolint:errcheck
		l.c.nc.SetDeadline(time.Time{})
	}
	l.res.Release()
	l.res = nil
}

func (l *lease) TrackQuiet(q protocol.QuietRequest) {
	if l.res == nil {
		return
	}
	if l.c.quiet.Len() >= maxQuietLedger {
		l.c.quiet.PopBack()
	}
	l.c.quiet.PushFront(q)
}

func (l *lease) PendingQuiet() []protocol.QuietRequest {
	if l.res == nil || l.c.quiet.Len() == 0 {
		return nil
	}
	n := l.c.quiet.Len()
	out := make([]protocol.QuietRequest, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.c.quiet.PopBack())
	}
	for _, q := range out {
		l.c.quiet.PushFront(q)
	}
	return out
}

// ResolveQuiet only shortens the ledger; the entry dropped is not
// necessarily the request that failed.
func (l *lease) ResolveQuiet() int {
	if l.res == nil || l.c.quiet.Len() == 0 {
		return 0
	}
	l.c.quiet.PopBack()
	return l.c.quiet.Len()
}

func (l *lease) SettleQuiet() int {
	if l.res == nil {
		return 0
	}
	n := l.c.quiet.Len()
	for l.c.quiet.Len() > 0 {
		l.c.quiet.PopBack()
	}
	return n
}

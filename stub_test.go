package client

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"

	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

var errInjected = errors.New("injected failure")

// stubInstance records every transport call made through its connections.
type stubInstance struct {
	name       string
	reply      []byte
	failSend   bool
	failDial   bool
	acquires   int
	sends      int
	reads      int
	resets     int
	releases   int
	written    bytes.Buffer
	shutdowns  int
	quietCount int
}

func (s *stubInstance) Addr() string { return s.name }

func (s *stubInstance) Acquire() (Conn, error) {
	s.acquires++
	if s.failDial {
		return nil, errInjected
	}
	return &stubConn{in: s, reader: bufio.NewReader(bytes.NewReader(s.reply))}, nil
}

func (s *stubInstance) Shutdown() { s.shutdowns++ }

func (s *stubInstance) transportCalls() int {
	return s.acquires + s.sends + s.reads + s.resets
}

type stubConn struct {
	in     *stubInstance
	reader *bufio.Reader
}

func (c *stubConn) Send(b []byte) error {
	c.in.sends++
	if c.in.failSend {
		return errInjected
	}
	c.in.written.Write(b)
	return nil
}

func (c *stubConn) SendVectored(bufs net.Buffers) error {
	c.in.sends++
	if c.in.failSend {
		return errInjected
	}
	for _, b := range bufs {
		c.in.written.Write(b)
	}
	return nil
}

func (c *stubConn) ReadLine(buf []byte) (int, error) {
	c.in.reads++
	line, err := c.reader.ReadSlice('\n')
	if err != nil {
		return 0, err
	}
	return copy(buf, line), nil
}

func (c *stubConn) ReadFull(buf []byte) error {
	c.in.reads++
	_, err := io.ReadFull(c.reader, buf)
	return err
}

func (c *stubConn) Reset()   { c.in.resets++ }
func (c *stubConn) Release() { c.in.releases++ }

func (c *stubConn) TrackQuiet(protocol.QuietRequest) { c.in.quietCount++ }

func (c *stubConn) PendingQuiet() []protocol.QuietRequest { return nil }

func (c *stubConn) ResolveQuiet() int { return 0 }

func (c *stubConn) SettleQuiet() int { return 0 }

type stubCluster []*stubInstance

func (c stubCluster) Count() int        { return len(c) }
func (c stubCluster) At(i int) Instance { return c[i] }

func stubDispatcher(cfg Config, instances ...*stubInstance) *Dispatcher {
	d, err := NewDispatcher(cfg, NewShardedRouter(stubCluster(instances), nil, nil))
	if err != nil {
		panic(err)
	}
	return d
}

func binaryCounterReply(op protocol.Opcode, status uint16, value uint64) []byte {
	b := make([]byte, protocol.HeaderSize+8)
	protocol.Header{
		Magic:   protocol.ResponseMagic,
		Opcode:  op,
		Status:  status,
		BodyLen: 8,
	}.MarshalTo(b)
	for i := 7; i >= 0; i-- {
		b[protocol.HeaderSize+i] = byte(value)
		value >>= 8
	}
	return b
}

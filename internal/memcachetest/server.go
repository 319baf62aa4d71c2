// Package memcachetest runs an in-process memcached stand-in that speaks the
// counter subset of the text and binary protocols.
package memcachetest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/valyala/bytebufferpool"

	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

const (
	statusNonNumeric uint16 = 0x0006
	statusUnknownCmd uint16 = 0x0081
)

type Server struct {
	ln       net.Listener
	mu       sync.Mutex
	values   map[string]string
	conns    map[net.Conn]struct{}
	requests atomic.Int64
	accepted atomic.Int64
	wg       sync.WaitGroup
}

// Start listens on a loopback port and stops the server when t ends.
func Start(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{ln: ln, values: make(map[string]string), conns: make(map[net.Conn]struct{})}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Requests counts the counter requests received so far.
func (s *Server) Requests() int {
	return int(s.requests.Load())
}

// Accepted counts the connections accepted so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

func (s *Server) Set(key string, v uint64) {
	s.SetRaw(key, strconv.FormatUint(v, 10))
}

// SetRaw stores an arbitrary value, e.g. a non-numeric one.
func (s *Server) SetRaw(key, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

func (s *Server) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	rw := bufio.NewReadWriter(bufio.NewReader(c), bufio.NewWriter(c))
	for {
		first, err := rw.Peek(1)
		if err != nil {
			return
		}
		if first[0] == protocol.RequestMagic {
			err = s.handleBinary(rw)
		} else {
			err = s.handleText(rw)
		}
		if err != nil {
			return
		}
		if err = rw.Flush(); err != nil {
			return
		}
	}
}

// apply runs a counter operation. It reports whether the key was found and
// whether its value was numeric.
func (s *Server) apply(verb protocol.Verb, key string, delta uint64, create bool, initial uint64) (uint64, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		if !create {
			return 0, false, true
		}
		s.values[key] = strconv.FormatUint(initial, 10)
		return initial, true, true
	}
	v, err := strconv.ParseUint(strings.TrimRight(raw, " "), 10, 64)
	if err != nil {
		return 0, true, false
	}
	if verb == protocol.Increment {
		v += delta
	} else if delta > v {
		v = 0
	} else {
		v -= delta
	}
	s.values[key] = strconv.FormatUint(v, 10)
	return v, true, true
}

func (s *Server) handleText(rw *bufio.ReadWriter) error {
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		_, err = rw.WriteString("ERROR\r\n")
		return err
	}
	var verb protocol.Verb
	switch fields[0] {
	case "incr":
		verb = protocol.Increment
	case "decr":
		verb = protocol.Decrement
	default:
		_, err = rw.WriteString("ERROR\r\n")
		return err
	}
	s.requests.Add(1)
	noreply := len(fields) == 4 && fields[3] == "noreply"
	if len(fields) != 3 && !noreply {
		_, err = rw.WriteString("CLIENT_ERROR bad command line format\r\n")
		return err
	}
	delta, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		_, err = rw.WriteString("CLIENT_ERROR invalid numeric delta argument\r\n")
		return err
	}

	v, found, numeric := s.apply(verb, fields[1], delta, false, 0)
	if noreply {
		return nil
	}
	switch {
	case !found:
		_, err = rw.WriteString("NOT_FOUND\r\n")
	case !numeric:
		_, err = rw.WriteString("CLIENT_ERROR cannot increment or decrement non-numeric value\r\n")
	default:
		_, err = rw.WriteString(strconv.FormatUint(v, 10) + "\r\n")
	}
	return err
}

func (s *Server) handleBinary(rw *bufio.ReadWriter) error {
	var hb [protocol.HeaderSize]byte
	if _, err := io.ReadFull(rw, hb[:]); err != nil {
		return err
	}
	h := protocol.ParseHeader(hb[:])
	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(rw, body); err != nil {
		return err
	}
	if !h.Opcode.Counter() {
		return writeBinary(rw, h.Opcode, statusUnknownCmd, []byte("Unknown command"))
	}
	if h.ExtLen != protocol.CounterExtrasSize || int(h.KeyLen)+int(h.ExtLen) != len(body) {
		return errors.New("malformed counter request")
	}
	s.requests.Add(1)

	extras := body[:h.ExtLen]
	key := string(body[h.ExtLen:])
	delta := binary.BigEndian.Uint64(extras[0:8])
	initial := binary.BigEndian.Uint64(extras[8:16])
	expiration := binary.BigEndian.Uint32(extras[16:20])

	verb := protocol.Increment
	if h.Opcode == protocol.OpDecrement || h.Opcode == protocol.OpDecrementQuiet {
		verb = protocol.Decrement
	}
	v, found, numeric := s.apply(verb, key, delta, expiration != protocol.ExpirationNotAdd, initial)
	switch {
	case !found:
		return writeBinary(rw, h.Opcode, protocol.StatusKeyNotFound, []byte("Not found"))
	case !numeric:
		return writeBinary(rw, h.Opcode, statusNonNumeric, []byte("Non-numeric server-side value for incr or decr"))
	case h.Opcode.Quiet():
		return nil
	default:
		var value [8]byte
		binary.BigEndian.PutUint64(value[:], v)
		return writeBinary(rw, h.Opcode, protocol.StatusNoError, value[:])
	}
}

func writeBinary(w io.Writer, op protocol.Opcode, status uint16, body []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var hb [protocol.HeaderSize]byte
	protocol.Header{
		Magic:   protocol.ResponseMagic,
		Opcode:  op,
		Status:  status,
		BodyLen: uint32(len(body)),
	}.MarshalTo(hb[:])
	buf.Write(hb[:])
	buf.Write(body)
	_, err := w.Write(buf.B)
	return err
}

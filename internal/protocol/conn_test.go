package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
)

var errInjected = errors.New("injected write failure")

type stubConn struct {
	written  bytes.Buffer
	segments []int
	sends    int
	reads    int
	resets   int
	failSend bool
	reader   *bufio.Reader
	quiet    []QuietRequest
	settled  int
}

func newStubConn(reply []byte) *stubConn {
	return &stubConn{reader: bufio.NewReader(bytes.NewReader(reply))}
}

func (s *stubConn) Send(b []byte) error {
	s.sends++
	if s.failSend {
		return errInjected
	}
	s.written.Write(b)
	return nil
}

func (s *stubConn) SendVectored(bufs net.Buffers) error {
	s.sends++
	if s.failSend {
		return errInjected
	}
	for _, b := range bufs {
		s.segments = append(s.segments, len(b))
		s.written.Write(b)
	}
	return nil
}

func (s *stubConn) ReadLine(buf []byte) (int, error) {
	s.reads++
	line, err := s.reader.ReadSlice('\n')
	if err != nil {
		return 0, err
	}
	if len(line) > len(buf) {
		return 0, ErrLineTooLong
	}
	return copy(buf, line), nil
}

func (s *stubConn) ReadFull(buf []byte) error {
	s.reads++
	_, err := io.ReadFull(s.reader, buf)
	return err
}

func (s *stubConn) Reset() { s.resets++ }

func (s *stubConn) TrackQuiet(q QuietRequest) { s.quiet = append(s.quiet, q) }

func (s *stubConn) PendingQuiet() []QuietRequest {
	return append([]QuietRequest(nil), s.quiet...)
}

func (s *stubConn) ResolveQuiet() int {
	if len(s.quiet) == 0 {
		return 0
	}
	s.quiet = s.quiet[1:]
	return len(s.quiet)
}

func (s *stubConn) SettleQuiet() int {
	n := len(s.quiet)
	s.settled += n
	s.quiet = nil
	return n
}

func binaryReply(op Opcode, status uint16, body []byte) []byte {
	b := make([]byte, HeaderSize+len(body))
	Header{
		Magic:   ResponseMagic,
		Opcode:  op,
		Status:  status,
		BodyLen: uint32(len(body)),
	}.MarshalTo(b)
	copy(b[HeaderSize:], body)
	return b
}

func counterBody(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

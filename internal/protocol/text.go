package protocol

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

const (
	// MaxCommandSize bounds a text request line, CRLF included. The line must
	// be strictly shorter.
	MaxCommandSize   = 350
	MaxTextKeyLength = 250
)

var (
	respError       = []byte("ERROR\r\n")
	respClientError = []byte("CLIENT_ERROR\r\n")
	respNotFound    = []byte("NOT_FOUND\r\n")
	crlf            = []byte("\r\n")
)

type TextRequest struct {
	Verb   Verb
	Prefix []byte
	Key    []byte
	Delta  uint64
	Quiet  bool
}

// EncodeText appends "<verb> <prefix><key> <delta>[ noreply]\r\n" to dst.
func EncodeText(dst *bytebufferpool.ByteBuffer, r TextRequest) error {
	start := dst.Len()
	dst.B = append(dst.B, r.Verb.String()...)
	dst.B = append(dst.B, ' ')
	dst.B = append(dst.B, r.Prefix...)
	dst.B = append(dst.B, r.Key...)
	dst.B = append(dst.B, ' ')
	dst.B = strconv.AppendUint(dst.B, r.Delta, 10)
	if r.Quiet {
		dst.B = append(dst.B, " noreply"...)
	}
	dst.B = append(dst.B, crlf...)
	if dst.Len()-start >= MaxCommandSize {
		dst.B = dst.B[:start]
		return ErrCommandTooLong
	}
	return nil
}

// DecodeText classifies a counter reply line. The literal tokens are checked
// before the numeral, in this order, because they are not required to be
// disjoint from it.
func DecodeText(line []byte) (Status, uint64) {
	switch {
	case bytes.HasPrefix(line, respError):
		return ProtocolError, 0
	case bytes.HasPrefix(line, respClientError):
		return ProtocolError, 0
	case bytes.HasPrefix(line, respNotFound):
		return NotFound, 0
	}
	if !bytes.HasSuffix(line, crlf) {
		return ProtocolError, 0
	}
	// older servers pad decremented values with trailing spaces
	digits := bytes.TrimRight(line[:len(line)-len(crlf)], " ")
	v, err := strconv.ParseUint(string(digits), 10, 64)
	if err != nil {
		return ProtocolError, 0
	}
	return Success, v
}

type TextCodec struct{}

// Do sends one counter request and, unless it is quiet, reads and classifies
// the reply. I/O failures reset c.
func (TextCodec) Do(c Conn, r TextRequest) (Status, uint64, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if err := EncodeText(buf, r); err != nil {
		return WriteFailure, 0, err
	}
	if err := c.Send(buf.B); err != nil {
		c.Reset()
		return WriteFailure, 0, err
	}
	if r.Quiet {
		return Success, 0, nil
	}

	var line [MaxCommandSize]byte
	n, err := c.ReadLine(line[:])
	if err != nil {
		c.Reset()
		if errors.Is(err, ErrLineTooLong) {
			return ProtocolError, 0, err
		}
		return ReadFailure, 0, err
	}
	st, v := DecodeText(line[:n])
	if st == ProtocolError {
		return st, 0, &ReplyError{Line: string(bytes.TrimRight(line[:n], "\r\n"))}
	}
	return st, v, nil
}

// ReplyError carries the text reply that was classified as a protocol error.
type ReplyError struct {
	Line string
}

func (e *ReplyError) Error() string {
	return "server replied " + strconv.Quote(e.Line)
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	HeaderSize         = 24
	CounterExtrasSize  = 20
	MaxBinaryKeyLength = 0xffff

	RequestMagic  uint8 = 0x80
	ResponseMagic uint8 = 0x81
	RawBytes      uint8 = 0x00

	// ExpirationNotAdd tells the server not to create a missing counter.
	ExpirationNotAdd uint32 = 0xffffffff

	StatusNoError     uint16 = 0x0000
	StatusKeyNotFound uint16 = 0x0001

	// replies to counter requests only carry a value or a short message
	maxResponseBody = 1 << 16
)

// Header is the fixed 24-byte header shared by binary requests and responses.
// Status occupies the bytes a request uses as the reserved vbucket field.
type Header struct {
	Magic    uint8
	Opcode   Opcode
	KeyLen   uint16
	ExtLen   uint8
	DataType uint8
	Status   uint16
	BodyLen  uint32
	Opaque   uint32
	CAS      uint64
}

func ParseHeader(b []byte) Header {
	_ = b[HeaderSize-1]
	return Header{
		Magic:    b[0],
		Opcode:   Opcode(b[1]),
		KeyLen:   binary.BigEndian.Uint16(b[2:4]),
		ExtLen:   b[4],
		DataType: b[5],
		Status:   binary.BigEndian.Uint16(b[6:8]),
		BodyLen:  binary.BigEndian.Uint32(b[8:12]),
		Opaque:   binary.BigEndian.Uint32(b[12:16]),
		CAS:      binary.BigEndian.Uint64(b[16:24]),
	}
}

func (h Header) MarshalTo(b []byte) {
	_ = b[HeaderSize-1]
	b[0] = h.Magic
	b[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(b[2:4], h.KeyLen)
	b[4] = h.ExtLen
	b[5] = h.DataType
	binary.BigEndian.PutUint16(b[6:8], h.Status)
	binary.BigEndian.PutUint32(b[8:12], h.BodyLen)
	binary.BigEndian.PutUint32(b[12:16], h.Opaque)
	binary.BigEndian.PutUint64(b[16:24], h.CAS)
}

type BinaryRequest struct {
	Verb       Verb
	Prefix     []byte
	Key        []byte
	Delta      uint64
	Initial    uint64
	Expiration uint32
	Quiet      bool
}

// CounterFrame is the header and extras block of a counter request. The
// prefix and key follow it on the wire as separate segments.
type CounterFrame [HeaderSize + CounterExtrasSize]byte

func (f *CounterFrame) Header() Header {
	return ParseHeader(f[:HeaderSize])
}

func (f *CounterFrame) Delta() uint64 {
	return binary.BigEndian.Uint64(f[HeaderSize : HeaderSize+8])
}

func (f *CounterFrame) Initial() uint64 {
	return binary.BigEndian.Uint64(f[HeaderSize+8 : HeaderSize+16])
}

func (f *CounterFrame) Expiration() uint32 {
	return binary.BigEndian.Uint32(f[HeaderSize+16:])
}

func EncodeBinary(r BinaryRequest) (CounterFrame, Opcode, error) {
	var f CounterFrame
	op := EffectiveOpcode(r.Verb, r.Quiet)

	keyLen := len(r.Prefix) + len(r.Key)
	if keyLen > MaxBinaryKeyLength {
		return f, op, ErrKeyTooLong
	}
	Header{
		Magic:    RequestMagic,
		Opcode:   op,
		KeyLen:   uint16(keyLen),
		ExtLen:   CounterExtrasSize,
		DataType: RawBytes,
		BodyLen:  uint32(keyLen + CounterExtrasSize),
	}.MarshalTo(f[:HeaderSize])
	binary.BigEndian.PutUint64(f[HeaderSize:], r.Delta)
	binary.BigEndian.PutUint64(f[HeaderSize+8:], r.Initial)
	binary.BigEndian.PutUint32(f[HeaderSize+16:], r.Expiration)
	return f, op, nil
}

// ServerError is a non-success status from a binary reply.
type ServerError struct {
	Code    uint16
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server status 0x%04x", e.Code)
	}
	return fmt.Sprintf("server status 0x%04x: %s", e.Code, e.Message)
}

// LateReply is an error reply to one of the quiet requests in Pending. Which
// one failed is unknown: quiet requests that succeeded sent nothing.
type LateReply struct {
	Opcode  Opcode
	Err     *ServerError
	Pending []QuietRequest
}

type BinaryCodec struct {
	// OnLateReply, when set, sees error replies to earlier quiet requests
	// that arrive ahead of the reply being waited for.
	OnLateReply func(r LateReply)
}

// Do writes the request as header+extras, prefix and key segments. Quiet
// requests return without reading; they are tracked on c until a later reply
// settles them.
func (bc BinaryCodec) Do(c Conn, r BinaryRequest) (Status, uint64, error) {
	frame, op, err := EncodeBinary(r)
	if err != nil {
		return WriteFailure, 0, err
	}
	if err := c.SendVectored(net.Buffers{frame[:], r.Prefix, r.Key}); err != nil {
		c.Reset()
		return WriteFailure, 0, err
	}
	if op.Quiet() {
		c.TrackQuiet(QuietRequest{Opcode: op, Key: string(r.Prefix) + string(r.Key)})
		return Success, 0, nil
	}

	var value [8]byte
	st, err := bc.ReadCounterResponse(c, op, &value)
	if st != Success {
		return st, 0, err
	}
	return Success, binary.BigEndian.Uint64(value[:]), nil
}

// ReadCounterResponse reads the reply to a counter request sent with opcode
// want. The counter value is copied into value, big-endian as on the wire.
func (bc BinaryCodec) ReadCounterResponse(c Conn, want Opcode, value *[8]byte) (Status, error) {
	for {
		var hb [HeaderSize]byte
		if err := c.ReadFull(hb[:]); err != nil {
			c.Reset()
			return ReadFailure, err
		}
		h := ParseHeader(hb[:])
		if h.Magic != ResponseMagic {
			c.Reset()
			return ProtocolError, fmt.Errorf("%w: 0x%02x", ErrBadMagic, h.Magic)
		}
		if h.BodyLen > maxResponseBody || uint32(h.KeyLen)+uint32(h.ExtLen) > h.BodyLen {
			c.Reset()
			return ProtocolError, ErrBadFrame
		}

		if h.Opcode != want {
			if !h.Opcode.Quiet() || !h.Opcode.Counter() {
				c.Reset()
				return ProtocolError, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpcode, h.Opcode, want)
			}
			body, err := readBody(c, h.BodyLen)
			if err != nil {
				return ReadFailure, err
			}
			late := LateReply{Opcode: h.Opcode, Err: serverError(h, body), Pending: c.PendingQuiet()}
			c.ResolveQuiet()
			if bc.OnLateReply != nil {
				bc.OnLateReply(late)
			}
			continue
		}

		// replies arrive in order, so quiet requests sent before this one
		// and not answered above have succeeded
		c.SettleQuiet()

		switch h.Status {
		case StatusNoError:
			if h.BodyLen-uint32(h.KeyLen)-uint32(h.ExtLen) != uint32(len(value)) {
				if _, err := readBody(c, h.BodyLen); err != nil {
					return ReadFailure, err
				}
				return ProtocolError, fmt.Errorf("%w: counter body of %d bytes", ErrBadFrame, h.BodyLen)
			}
			if _, err := readBody(c, uint32(h.KeyLen)+uint32(h.ExtLen)); err != nil {
				return ReadFailure, err
			}
			if err := c.ReadFull(value[:]); err != nil {
				c.Reset()
				return ReadFailure, err
			}
			return Success, nil
		case StatusKeyNotFound:
			if _, err := readBody(c, h.BodyLen); err != nil {
				return ReadFailure, err
			}
			return NotFound, nil
		default:
			body, err := readBody(c, h.BodyLen)
			if err != nil {
				return ReadFailure, err
			}
			return ProtocolError, serverError(h, body)
		}
	}
}

func readBody(c Conn, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, n)
	if err := c.ReadFull(body); err != nil {
		c.Reset()
		return nil, err
	}
	return body, nil
}

func serverError(h Header, body []byte) *ServerError {
	msg := body[int(h.KeyLen)+int(h.ExtLen):]
	return &ServerError{Code: h.Status, Message: string(msg)}
}

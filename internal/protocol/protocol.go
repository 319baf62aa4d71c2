// Package protocol encodes counter requests for the memcached text and binary
// protocols and classifies the replies.
package protocol

import (
	"errors"
	"net"
)

type Status int

const (
	Success Status = iota
	ProtocolError
	NotFound
	NoServers
	BadKey
	WriteFailure
	ReadFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case NoServers:
		return "NO_SERVERS"
	case BadKey:
		return "BAD_KEY"
	case WriteFailure:
		return "WRITE_FAILURE"
	case ReadFailure:
		return "READ_FAILURE"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrCommandTooLong   = errors.New("command exceeds maximum command size")
	ErrKeyTooLong       = errors.New("prefixed key does not fit the key length field")
	ErrLineTooLong      = errors.New("response line exceeds buffer")
	ErrBadMagic         = errors.New("bad magic number in response")
	ErrBadFrame         = errors.New("inconsistent response frame lengths")
	ErrUnexpectedOpcode = errors.New("unexpected opcode in response")
)

// QuietRequest is a quiet binary request sent on a connection whose error
// reply, if any, has not been read yet. Error replies carry no key and a zero
// opaque, so a reply cannot be matched to one QuietRequest.
type QuietRequest struct {
	Opcode Opcode
	Key    string
}

// Conn is the part of a server connection the codecs drive. A Conn carries at
// most one request/response cycle at a time.
type Conn interface {
	Send(b []byte) error
	SendVectored(bufs net.Buffers) error
	// ReadLine reads one '\n' terminated line into buf and returns its length.
	ReadLine(buf []byte) (int, error)
	ReadFull(buf []byte) error
	// Reset discards any buffered or partially transferred state.
	Reset()
	TrackQuiet(q QuietRequest)
	// PendingQuiet lists the tracked quiet requests, oldest first.
	PendingQuiet() []QuietRequest
	// ResolveQuiet accounts for one late error reply and returns how many
	// quiet requests are still pending.
	ResolveQuiet() int
	SettleQuiet() int
}

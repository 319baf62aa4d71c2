// Package client implements the counter operations of a memcached client:
// increment and decrement, with or without an initial value, routed across a
// cluster and spoken in either the text or the binary protocol.
package client

import (
	"errors"
	"fmt"

	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

type Status = protocol.Status

const (
	Success       = protocol.Success
	ProtocolError = protocol.ProtocolError
	NotFound      = protocol.NotFound
	NoServers     = protocol.NoServers
	BadKey        = protocol.BadKey
	WriteFailure  = protocol.WriteFailure
	ReadFailure   = protocol.ReadFailure
)

var (
	ErrNoServers    = errors.New("memcache: no servers configured")
	ErrBadKey       = errors.New("memcache: key is empty, too long or contains invalid characters")
	ErrWriteFailure = errors.New("memcache: request could not be written")
	ErrReadFailure  = errors.New("memcache: response could not be read")
	ErrProtocol     = errors.New("memcache: protocol error")
	ErrNotFound     = errors.New("memcache: not found")
)

// ServerError is a non-success status returned by a binary protocol reply.
type ServerError = protocol.ServerError

// Result is the outcome of one counter operation. Value is only meaningful
// when Status is Success; quiet operations always report 0.
type Result struct {
	Status Status
	Value  uint64
}

// Counter is the counter command family of the client.
type Counter interface {
	Increment(key string, delta uint64) (Result, error)
	Decrement(key string, delta uint64) (Result, error)
	IncrementByKey(masterKey, key string, delta uint64) (Result, error)
	DecrementByKey(masterKey, key string, delta uint64) (Result, error)
	IncrementWithInitial(key string, delta, initial uint64, expiration uint32) (Result, error)
	IncrementWithInitialByKey(masterKey, key string, delta, initial uint64, expiration uint32) (Result, error)
	DecrementWithInitial(key string, delta, initial uint64, expiration uint32) (Result, error)
	DecrementWithInitialByKey(masterKey, key string, delta, initial uint64, expiration uint32) (Result, error)
	Shutdown()
}

func sentinel(s Status) error {
	switch s {
	case NoServers:
		return ErrNoServers
	case BadKey:
		return ErrBadKey
	case WriteFailure:
		return ErrWriteFailure
	case ReadFailure:
		return ErrReadFailure
	case NotFound:
		return ErrNotFound
	default:
		return ErrProtocol
	}
}

// fail builds the Result and error for a non-success status.
func fail(s Status, cause error) (Result, error) {
	err := sentinel(s)
	if cause != nil {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	return Result{Status: s}, err
}

// StatusOf maps an error returned by a counter operation back to its Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNoServers):
		return NoServers
	case errors.Is(err, ErrBadKey):
		return BadKey
	case errors.Is(err, ErrWriteFailure):
		return WriteFailure
	case errors.Is(err, ErrReadFailure):
		return ReadFailure
	case errors.Is(err, ErrNotFound):
		return NotFound
	default:
		return ProtocolError
	}
}

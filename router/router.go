// Package router holds the placement policies that map a routing key to one
// of n servers.
package router

import (
	"fmt"
	"hash/fnv"
)

// Hasher reduces a routing key to a 64-bit hash.
type Hasher func(key []byte) uint64

func FNV1a(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

// Distribution picks a server index in [0, n) for a key hash. For a fixed n
// the same hash always yields the same index.
type Distribution interface {
	Pick(hash uint64, n int) int
}

const (
	NameJump   = "jump"
	NameModulo = "modulo"
	NameRing   = "ring"
)

// New returns the distribution registered under name. virtualNodes only
// applies to the ring.
func New(name string, virtualNodes int) (Distribution, error) {
	switch name {
	case "", NameJump:
		return Jump{}, nil
	case NameModulo:
		return Modulo{}, nil
	case NameRing:
		return NewRing(virtualNodes), nil
	default:
		return nil, fmt.Errorf("unknown distribution %q", name)
	}
}

type Modulo struct{}

func (Modulo) Pick(hash uint64, n int) int {
	return int(hash % uint64(n))
}

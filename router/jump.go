package router

import "github.com/dgryski/go-jump"

// Jump is Lamping and Veach's jump consistent hash.
type Jump struct{}

func (Jump) Pick(hash uint64, n int) int {
	return int(jump.Hash(hash, n))
}

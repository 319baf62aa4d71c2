package router

import (
	"encoding/binary"
	"sort"
	"sync"
)

const DefaultVirtualNodes = 150

// Ring places every server at virtualNodes points of a 64-bit hash ring. A
// key belongs to the first point at or after its hash, wrapping around.
type Ring struct {
	virtualNodes int

	mu    sync.RWMutex
	rings map[int]*points
}

type points struct {
	hashes []uint64
	owners []int
}

func NewRing(virtualNodes int) *Ring {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &Ring{virtualNodes: virtualNodes, rings: make(map[int]*points)}
}

func (r *Ring) Pick(hash uint64, n int) int {
	p := r.points(n)
	hash = mix(hash)
	idx := sort.Search(len(p.hashes), func(i int) bool {
		return p.hashes[i] >= hash
	})
	if idx == len(p.hashes) {
		idx = 0
	}
	return p.owners[idx]
}

func (r *Ring) points(n int) *points {
	r.mu.RLock()
	p, ok := r.rings[n]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok = r.rings[n]; ok {
		return p
	}
	p = build(n, r.virtualNodes)
	r.rings[n] = p
	return p
}

func build(n, virtualNodes int) *points {
	type point struct {
		hash  uint64
		owner int
	}
	all := make([]point, 0, n*virtualNodes)
	var seed [16]byte
	for server := 0; server < n; server++ {
		for v := 0; v < virtualNodes; v++ {
			binary.BigEndian.PutUint64(seed[:8], uint64(server))
			binary.BigEndian.PutUint64(seed[8:], uint64(v))
			all = append(all, point{hash: mix(FNV1a(seed[:])), owner: server})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].hash == all[j].hash {
			return all[i].owner < all[j].owner
		}
		return all[i].hash < all[j].hash
	})

	p := &points{hashes: make([]uint64, len(all)), owners: make([]int, len(all))}
	for i, pt := range all {
		p.hashes[i] = pt.hash
		p.owners[i] = pt.owner
	}
	return p
}

// mix spreads FNV output over the whole ring; inputs differing only in their
// last bytes would otherwise land close together.
func mix(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

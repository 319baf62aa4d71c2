package client

import (
	"github.com/jsp-lqk/metapipe-arith/router"
)

// ShardedRouter hashes the routing key and lets a distribution pick the
// instance. Placement only changes when the cluster does. The configured
// prefix is not part of the hash: the same key lands on the same instance
// whatever namespace it is stored under.
type ShardedRouter struct {
	cluster Cluster
	hash    router.Hasher
	dist    router.Distribution
}

func NewShardedRouter(cluster Cluster, dist router.Distribution, hash router.Hasher) *ShardedRouter {
	if dist == nil {
		dist = router.Jump{}
	}
	if hash == nil {
		hash = router.FNV1a
	}
	return &ShardedRouter{cluster: cluster, hash: hash, dist: dist}
}

func (r *ShardedRouter) Size() int {
	return r.cluster.Count()
}

func (r *ShardedRouter) Route(key string) (Instance, error) {
	n := r.cluster.Count()
	if n == 0 {
		return nil, ErrNoServers
	}
	i := r.dist.Pick(r.hash([]byte(key)), n)
	return r.cluster.At(i), nil
}

func (r *ShardedRouter) Shutdown() {
	shutdown(r.cluster)
}

package client

import (
	"github.com/jsp-lqk/metapipe-arith/internal/transport"
)

// Instance is one addressable server. The dispatcher only borrows it for the
// duration of a call.
type Instance = transport.Instance

// Conn is a connection leased from an Instance for one request/response cycle.
type Conn = transport.Conn

// Cluster is the set of instances a router places keys on.
type Cluster interface {
	Count() int
	At(i int) Instance
}

type Router interface {
	// Size is the number of instances keys can be routed to.
	Size() int
	Route(routingKey string) (Instance, error)
	Shutdown()
}

// DirectRouter sends every key to a single instance.
type DirectRouter struct {
	instance Instance
}

func NewDirectRouter(instance Instance) *DirectRouter {
	return &DirectRouter{instance: instance}
}

func (r *DirectRouter) Size() int {
	if r.instance == nil {
		return 0
	}
	return 1
}

func (r *DirectRouter) Route(key string) (Instance, error) {
	if r.instance == nil {
		return nil, ErrNoServers
	}
	return r.instance, nil
}

func (r *DirectRouter) Shutdown() {
	shutdown(r.instance)
}

func shutdown(v any) {
	if s, ok := v.(interface{ Shutdown() }); ok {
		s.Shutdown()
	}
}

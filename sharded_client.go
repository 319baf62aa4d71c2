package client

import (
	"fmt"
	"net"
	"strconv"

	"github.com/jsp-lqk/metapipe-arith/internal/transport"
	"github.com/jsp-lqk/metapipe-arith/router"
)

// NewClient connects a dispatcher to every server in cfg.Servers.
func NewClient(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	dist, err := router.New(cfg.Distribution, cfg.VirtualNodes)
	if err != nil {
		return nil, err
	}
	instances := make([]Instance, 0, len(cfg.Servers))
	for _, t := range cfg.Servers {
		s, err := transport.NewServer(t.transportTarget(), o.logger)
		if err != nil {
			for _, in := range instances {
				shutdown(in)
			}
			return nil, err
		}
		instances = append(instances, s)
	}
	r := NewShardedRouter(transport.NewCluster(instances...), dist, o.hasher)
	return NewDispatcher(cfg, r, opts...)
}

// ShardedClient spreads keys over targets with the default text protocol
// configuration.
func ShardedClient(targets ...ConnectionTarget) (*Dispatcher, error) {
	cfg := DefaultConfig()
	cfg.Servers = targets
	return NewClient(cfg)
}

func SingleTargetClient(target ConnectionTarget, opts ...Option) (*Dispatcher, error) {
	cfg := DefaultConfig()
	cfg.Servers = []ConnectionTarget{target}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	s, err := transport.NewServer(target.transportTarget(), o.logger)
	if err != nil {
		return nil, err
	}
	return NewDispatcher(cfg, NewDirectRouter(s), opts...)
}

// DefaultClient connects to a single "host:port" address.
func DefaultClient(addr string) (*Dispatcher, error) {
	target, err := ParseTarget(addr)
	if err != nil {
		return nil, err
	}
	return SingleTargetClient(target)
}

func ParseTarget(addr string) (ConnectionTarget, error) {
	host, portString, err := net.SplitHostPort(addr)
	if err != nil {
		return ConnectionTarget{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil {
		return ConnectionTarget{}, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return ConnectionTarget{Address: host, Port: port}, nil
}

// Package transport connects the counter dispatch core to memcached servers
// over TCP.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const DefaultMaxConnections = 8

// Instance is one addressable server of a cluster.
type Instance interface {
	Addr() string
	Acquire() (Conn, error)
}

type Target struct {
	Address        string
	Port           int
	MaxConnections int
	Timeout        time.Duration
}

func (t Target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(t.Port))
}

// Server pools connections to a single memcached instance.
type Server struct {
	Target
	addr string
	pool *puddle.Pool[*conn]
	log  *slog.Logger
}

func NewServer(t Target, log *slog.Logger) (*Server, error) {
	if t.MaxConnections <= 0 {
		t.MaxConnections = DefaultMaxConnections
	}
	s := &Server{Target: t, addr: t.String(), log: log}
	pool, err := puddle.NewPool(&puddle.Config[*conn]{
		Constructor: s.dial,
		Destructor: func(c *conn) {
			_ = c.nc.Close()
		},
		MaxSize: int32(t.MaxConnections),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create pool for %s", s.addr)
	}
	s.pool = pool
	return s, nil
}

func (s *Server) dial(ctx context.Context) (*conn, error) {
	d := net.Dialer{Timeout: s.Timeout}
	nc, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		s.log.Error("dial failed", slog.String("server", s.addr), slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to %s - %w", s.addr, err)
	}
	return newConn(nc), nil
}

func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) Acquire() (Conn, error) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	res, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "acquire connection to %s", s.addr)
	}
	return &lease{server: s, res: res, c: res.Value(), timeout: s.Timeout}, nil
}

// Idle reports the number of pooled connections not currently leased.
func (s *Server) Idle() int {
	return int(s.pool.Stat().IdleResources())
}

// Open reports the number of live pooled connections.
func (s *Server) Open() int {
	return int(s.pool.Stat().TotalResources())
}

func (s *Server) Shutdown() {
	s.pool.Close()
}

// Cluster is a fixed, ordered set of instances.
type Cluster struct {
	instances []Instance
}

func NewCluster(instances ...Instance) *Cluster {
	return &Cluster{instances: slices.Clone(instances)}
}

func (c *Cluster) Count() int {
	return len(c.instances)
}

func (c *Cluster) At(i int) Instance {
	return c.instances[i]
}

func (c *Cluster) Addrs() []string {
	addrs := make([]string, 0, len(c.instances))
	for _, in := range c.instances {
		addrs = append(addrs, in.Addr())
	}
	return addrs
}

func (c *Cluster) Shutdown() {
	for _, in := range c.instances {
		if s, ok := in.(interface{ Shutdown() }); ok {
			s.Shutdown()
		}
	}
}

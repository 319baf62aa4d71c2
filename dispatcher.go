package client

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsp-lqk/metapipe-arith/internal/protocol"
)

var errInitialNeedsBinary = errors.New("initial values require the binary protocol")

// Dispatcher runs counter operations against the instance its router picks.
// It keeps no state between calls and is safe for concurrent use.
type Dispatcher struct {
	cfg    Config
	router Router
	text   protocol.TextCodec
	binary protocol.BinaryCodec
	log    *slog.Logger
}

var _ Counter = (*Dispatcher)(nil)

func NewDispatcher(cfg Config, r Router, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	d := &Dispatcher{cfg: cfg, router: r, log: o.logger}
	d.binary.OnLateReply = d.lateReply
	return d, nil
}

func (d *Dispatcher) Config() Config {
	return d.cfg
}

// lateReply logs every quiet request the reply could belong to.
func (d *Dispatcher) lateReply(r protocol.LateReply) {
	candidates := make([]string, 0, len(r.Pending))
	for _, q := range r.Pending {
		candidates = append(candidates, q.Key)
	}
	d.log.Warn("quiet request failed",
		slog.String("opcode", r.Opcode.String()),
		slog.String("status", fmt.Sprintf("0x%04x", r.Err.Code)),
		slog.Any("error", r.Err),
		slog.Int("pending", len(r.Pending)),
		slog.Any("candidates", candidates))
}

type operation struct {
	verb        protocol.Verb
	masterKey   string
	key         string
	delta       uint64
	initial     uint64
	expiration  uint32
	withInitial bool
}

func (d *Dispatcher) Increment(key string, delta uint64) (Result, error) {
	return d.IncrementByKey(key, key, delta)
}

func (d *Dispatcher) Decrement(key string, delta uint64) (Result, error) {
	return d.DecrementByKey(key, key, delta)
}

// IncrementByKey increments key on the instance masterKey routes to.
func (d *Dispatcher) IncrementByKey(masterKey, key string, delta uint64) (Result, error) {
	return d.dispatch(operation{verb: protocol.Increment, masterKey: masterKey, key: key, delta: delta})
}

func (d *Dispatcher) DecrementByKey(masterKey, key string, delta uint64) (Result, error) {
	return d.dispatch(operation{verb: protocol.Decrement, masterKey: masterKey, key: key, delta: delta})
}

func (d *Dispatcher) IncrementWithInitial(key string, delta, initial uint64, expiration uint32) (Result, error) {
	return d.IncrementWithInitialByKey(key, key, delta, initial, expiration)
}

// IncrementWithInitialByKey creates a missing counter with initial instead of
// failing. Only the binary protocol can express it.
func (d *Dispatcher) IncrementWithInitialByKey(masterKey, key string, delta, initial uint64, expiration uint32) (Result, error) {
	return d.dispatch(operation{
		verb:        protocol.Increment,
		masterKey:   masterKey,
		key:         key,
		delta:       delta,
		initial:     initial,
		expiration:  expiration,
		withInitial: true,
	})
}

func (d *Dispatcher) DecrementWithInitial(key string, delta, initial uint64, expiration uint32) (Result, error) {
	return d.DecrementWithInitialByKey(key, key, delta, initial, expiration)
}

func (d *Dispatcher) DecrementWithInitialByKey(masterKey, key string, delta, initial uint64, expiration uint32) (Result, error) {
	return d.dispatch(operation{
		verb:        protocol.Decrement,
		masterKey:   masterKey,
		key:         key,
		delta:       delta,
		initial:     initial,
		expiration:  expiration,
		withInitial: true,
	})
}

func (d *Dispatcher) Shutdown() {
	d.router.Shutdown()
}

func (d *Dispatcher) dispatch(op operation) (Result, error) {
	cfg := d.cfg

	if d.router.Size() == 0 {
		return fail(NoServers, nil)
	}
	if op.withInitial && !cfg.Binary() {
		return fail(ProtocolError, errInitialNeedsBinary)
	}
	if err := validateKey(op.key, cfg); err != nil {
		return fail(BadKey, nil)
	}
	if err := validateKey(op.masterKey, cfg); err != nil {
		return fail(BadKey, nil)
	}

	instance, err := d.router.Route(op.masterKey)
	if err != nil {
		return fail(NoServers, nil)
	}
	c, err := instance.Acquire()
	if err != nil {
		return fail(WriteFailure, err)
	}
	defer c.Release()

	var (
		st    Status
		value uint64
	)
	if cfg.Binary() {
		req := protocol.BinaryRequest{
			Verb:       op.verb,
			Prefix:     []byte(cfg.Prefix),
			Key:        []byte(op.key),
			Delta:      op.delta,
			Expiration: protocol.ExpirationNotAdd,
			Quiet:      cfg.NoReply,
		}
		if op.withInitial {
			req.Initial = op.initial
			req.Expiration = op.expiration
		}
		st, value, err = d.binary.Do(c, req)
	} else {
		st, value, err = d.text.Do(c, protocol.TextRequest{
			Verb:   op.verb,
			Prefix: []byte(cfg.Prefix),
			Key:    []byte(op.key),
			Delta:  op.delta,
			Quiet:  cfg.NoReply,
		})
	}

	if st != Success {
		return fail(st, err)
	}
	return Result{Status: Success, Value: value}, nil
}

package client

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/jsp-lqk/metapipe-arith/internal/transport"
	"github.com/jsp-lqk/metapipe-arith/router"
)

type Protocol string

const (
	ProtocolText   Protocol = "text"
	ProtocolBinary Protocol = "binary"
)

// MaxPrefixLength bounds the namespace prefix put in front of every key.
const MaxPrefixLength = 128

type ConnectionTarget struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	TimeoutMs      int    `yaml:"timeout_ms"`
}

func (t ConnectionTarget) transportTarget() transport.Target {
	return transport.Target{
		Address:        t.Address,
		Port:           t.Port,
		MaxConnections: t.MaxConnections,
		Timeout:        time.Duration(t.TimeoutMs) * time.Millisecond,
	}
}

// Config is read once by a Dispatcher and never changed afterwards.
type Config struct {
	Protocol     Protocol           `yaml:"protocol"`
	NoReply      bool               `yaml:"no_reply"`
	VerifyKey    bool               `yaml:"verify_key"`
	Prefix       string             `yaml:"prefix"`
	Distribution string             `yaml:"distribution"`
	VirtualNodes int                `yaml:"virtual_nodes"`
	Servers      []ConnectionTarget `yaml:"servers"`
}

func DefaultConfig() Config {
	return Config{
		Protocol:     ProtocolText,
		Distribution: router.NameJump,
	}
}

func (c Config) Binary() bool {
	return c.Protocol == ProtocolBinary
}

// LoadConfig reads a YAML config file. Unset fields keep DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Protocol {
	case "", ProtocolText, ProtocolBinary:
	default:
		return fmt.Errorf("invalid protocol %q", c.Protocol)
	}
	if len(c.Prefix) > MaxPrefixLength {
		return fmt.Errorf("prefix of %d bytes exceeds %d", len(c.Prefix), MaxPrefixLength)
	}
	if !graphic(c.Prefix) {
		return fmt.Errorf("prefix %q contains invalid characters", c.Prefix)
	}
	if _, err := router.New(c.Distribution, c.VirtualNodes); err != nil {
		return err
	}
	seen := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		if s.Address == "" || s.Port <= 0 || s.Port > 65535 {
			return fmt.Errorf("invalid server target %s:%d", s.Address, s.Port)
		}
		addr := s.transportTarget().String()
		if slices.Contains(seen, addr) {
			return fmt.Errorf("duplicate server target %s", addr)
		}
		seen = append(seen, addr)
	}
	return nil
}

type options struct {
	logger *slog.Logger
	hasher router.Hasher
}

type Option func(*options)

// WithLogger sets the logger for connection resets and late quiet replies.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHasher replaces the FNV-1a routing key hash.
func WithHasher(h router.Hasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		hasher: router.FNV1a,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

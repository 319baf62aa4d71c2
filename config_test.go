package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "arith.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
protocol: binary
no_reply: true
verify_key: true
prefix: "app:"
distribution: ring
virtual_nodes: 50
servers:
  - address: 10.0.0.1
    port: 11211
    max_connections: 4
    timeout_ms: 250
  - address: 10.0.0.2
    port: 11211
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ProtocolBinary, cfg.Protocol)
	assert.True(t, cfg.Binary())
	assert.True(t, cfg.NoReply)
	assert.True(t, cfg.VerifyKey)
	assert.Equal(t, "app:", cfg.Prefix)
	assert.Equal(t, "ring", cfg.Distribution)
	assert.Equal(t, 50, cfg.VirtualNodes)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, ConnectionTarget{Address: "10.0.0.1", Port: 11211, MaxConnections: 4, TimeoutMs: 250}, cfg.Servers[0])
	assert.Equal(t, "250ms", cfg.Servers[0].transportTarget().Timeout.String())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "protocol: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "protocol: udp\n"))
	assert.ErrorContains(t, err, "invalid protocol")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Prefix = strings.Repeat("p", MaxPrefixLength+1)
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Prefix = "with space"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Distribution = "random"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Servers = []ConnectionTarget{{Address: "a", Port: 1}, {Address: "a", Port: 1}}
	assert.ErrorContains(t, bad.Validate(), "duplicate")

	bad = cfg
	bad.Servers = []ConnectionTarget{{Address: "a", Port: 0}}
	assert.Error(t, bad.Validate())

	_, err := NewDispatcher(bad, NewDirectRouter(nil))
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("127.0.0.1:11211")
	require.NoError(t, err)
	assert.Equal(t, ConnectionTarget{Address: "127.0.0.1", Port: 11211}, target)

	_, err = ParseTarget("localhost")
	assert.Error(t, err)
	_, err = ParseTarget("localhost:http")
	assert.Error(t, err)
}

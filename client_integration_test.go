package client

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setup(t *testing.T) (context.Context, testcontainers.Container, string, int) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "memcached:latest",
		ExposedPorts: []string{"11211/tcp"},
		WaitingFor:   wait.ForListeningPort("11211/tcp"),
	}
	memcachedContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	host, err := memcachedContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}

	port, err := memcachedContainer.MappedPort(ctx, "11211/tcp")
	if err != nil {
		t.Fatal(err)
	}

	return ctx, memcachedContainer, host, port.Int()
}

// seed stores raw values through an independent client.
func seed(t *testing.T, addr string, values map[string]string) {
	mc := memcache.New(addr)
	for k, v := range values {
		require.NoError(t, mc.Set(&memcache.Item{Key: k, Value: []byte(v)}))
	}
}

func TestTextCounterCommands(t *testing.T) {
	ctx, memcachedContainer, host, port := setup(t)
	defer memcachedContainer.Terminate(ctx)

	addr := fmt.Sprintf("%s:%d", host, port)
	textCounters(t, addr)
	textNoReply(t, addr)
}

func textCounters(t *testing.T, addr string) {
	c, err := DefaultClient(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	// incr - not found
	r, err := c.Increment("text-missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, NotFound, r.Status, "Expected NotFound response")

	seed(t, addr, map[string]string{"text-1": "10", "text-name": "bob"})

	r, err = c.Increment("text-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, Result{Status: Success, Value: 15}, r, "Expected incremented value")

	r, err = c.Decrement("text-1", 100)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, uint64(0), r.Value, "Expected decrement to stop at zero")

	r, err = c.Increment("text-name", 1)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, ProtocolError, r.Status, "Expected non-numeric value to be refused")

	r, err = c.IncrementWithInitial("text-1", 1, 1, 0)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, ProtocolError, r.Status, "Expected initial values to need the binary protocol")

	// by key - 64 bit wrap on increment
	seed(t, addr, map[string]string{"text-wrap": "18446744073709551615"})
	r, err = c.IncrementByKey("group", "text-wrap", 2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, uint64(1), r.Value, "Expected increment to wrap at 64 bits")
}

func textNoReply(t *testing.T, addr string) {
	target, err := ParseTarget(addr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.NoReply = true
	cfg.Prefix = "nr:"
	cfg.Servers = []ConnectionTarget{target}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Shutdown()

	seed(t, addr, map[string]string{"nr:hits": "0"})
	for i := 0; i < 20; i++ {
		r, err := c.Increment("hits", 1)
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, Result{Status: Success}, r, "Expected noreply to report success without a value")
	}

	mc := memcache.New(addr)
	assert.Eventually(t, func() bool {
		it, err := mc.Get("nr:hits")
		return err == nil && strings.TrimSpace(string(it.Value)) == "20"
	}, timeout, tick)
}

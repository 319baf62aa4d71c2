package client

import (
	"fmt"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/jsp-lqk/metapipe-arith/internal/memcachetest"
)

const (
	totalKeys = 1000
	poolSize  = 50
)

func setupCounters(fake *memcachetest.Server) {
	for i := 0; i < totalKeys; i++ {
		fake.Set(fmt.Sprintf("key%d", i), 0)
	}
}

func BenchmarkGomemcacheIncrement(b *testing.B) {
	fake := memcachetest.Start(b)
	setupCounters(fake)

	client := memcache.New(fake.Addr())
	client.MaxIdleConns = poolSize

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i%totalKeys)
			if _, err := client.Increment(key, 1); err != nil {
				b.Fatalf("Failed to increment key %s: %v", key, err)
			}
			i++
		}
	})
}

func benchmarkDispatcher(b *testing.B, protocol Protocol) {
	fake := memcachetest.Start(b)
	setupCounters(fake)

	cfg := DefaultConfig()
	cfg.Protocol = protocol
	cfg.Servers = []ConnectionTarget{{Address: fake.Host(), Port: fake.Port(), MaxConnections: poolSize}}
	client, err := NewClient(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer client.Shutdown()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key%d", i%totalKeys)
			if _, err := client.Increment(key, 1); err != nil {
				b.Fatalf("Failed to increment key %s: %v", key, err)
			}
			i++
		}
	})
}

func BenchmarkTextIncrement(b *testing.B)   { benchmarkDispatcher(b, ProtocolText) }
func BenchmarkBinaryIncrement(b *testing.B) { benchmarkDispatcher(b, ProtocolBinary) }

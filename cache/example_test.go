package cache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/agentcache/cache"
)

func ExampleNewTTL() {
	c := cache.NewTTL[string](cache.TTLConfig[string]{
		TTL:           5 * time.Minute,
		SweepInterval: -1,
	}, func(ctx context.Context, key string) (string, error) {
		return "loaded:" + key, nil
	})
	defer c.Close()

	ctx := context.Background()

	// Miss invokes the loader and caches the result
	v, _ := c.Get(ctx, "researcher")
	fmt.Println("First:", v)

	// Hit serves from memory
	v, _ = c.Get(ctx, "researcher")
	fmt.Println("Second:", v)
	// Output:
	// First: loaded:researcher
	// Second: loaded:researcher
}

func ExampleNewReload() {
	digest := func(ctx context.Context) (string, error) {
		return "v1", nil
	}
	load := func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"researcher": "You are a researcher."}, nil
	}

	c, _ := cache.NewReload[string](cache.ReloadConfig{
		CheckInterval: time.Minute,
	}, digest, load)
	defer c.Close()

	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		fmt.Println("init:", err)
		return
	}

	v, ok, _ := c.Get(ctx, "researcher")
	fmt.Println("Found:", ok)
	fmt.Println("Value:", v)
	// Output:
	// Found: true
	// Value: You are a researcher.
}

func ExampleNewGated() {
	detector := func(ctx context.Context, key string) (bool, error) {
		return false, nil
	}
	loader := func(ctx context.Context, key string) (string, error) {
		return "catalog for " + key, nil
	}

	g, _ := cache.NewGated[string](cache.GatedConfig{
		ProbeTTL: 10 * time.Second,
		DataTTL:  5 * time.Minute,
	}, detector, loader)
	defer g.Close()

	v, _ := g.Get(context.Background(), "search-server")
	fmt.Println(v)
	// Output:
	// catalog for search-server
}

func ExampleDigestCache_GetVerified() {
	c := cache.NewDigest[string](cache.DigestConfig{
		VerifyInterval: 30 * time.Second,
	})

	digest := func(ctx context.Context) (string, error) {
		return "abc123", nil
	}
	reload := func(ctx context.Context) (string, error) {
		return "You are a researcher.", nil
	}

	v, _ := c.GetVerified(context.Background(), "instructions:researcher", digest, reload)
	fmt.Println(v)
	// Output:
	// You are a researcher.
}

func ExampleDigestOf() {
	// Map ordering does not affect the digest
	a, _ := cache.DigestOf(map[string]any{"name": "claude", "provider": "anthropic"})
	b, _ := cache.DigestOf(map[string]any{"provider": "anthropic", "name": "claude"})
	fmt.Println("Stable:", a == b)
	// Output:
	// Stable: true
}

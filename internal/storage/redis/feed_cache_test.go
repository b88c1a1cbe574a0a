package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"ChainPilot/internal/config"
	"ChainPilot/internal/relay"
)

func TestMemoryFeedCacheExpires(t *testing.T) {
	t.Parallel()

	cache := NewMemoryFeedCache(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	if _, ok, _ := cache.Get(ctx, "aixbt_agent"); ok {
		t.Fatal("expected empty cache")
	}

	posts := []relay.Post{{ID: "1", Text: "ETH looks strong"}}
	if err := cache.Set(ctx, "aixbt_agent", posts); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	posts[0].Text = "mutated"

	got, ok, err := cache.Get(ctx, "aixbt_agent")
	if err != nil || !ok {
		t.Fatalf("expected cache hit, ok=%v err=%v", ok, err)
	}
	if got[0].Text != "ETH looks strong" {
		t.Fatalf("cache must hold its own copy, got %q", got[0].Text)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := cache.Get(ctx, "aixbt_agent"); ok {
		t.Fatal("expected entry to expire after ttl")
	}
}

func TestNewFallsBackToMemory(t *testing.T) {
	t.Parallel()

	cache, err := New(context.Background(), config.RedisConfig{}, time.Second)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, ok := cache.(*MemoryFeedCache); !ok {
		t.Fatalf("unexpected cache type %T", cache)
	}
}

func TestRedisFeedCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("CHAINPILOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAINPILOT_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	cache, err := NewRedisFeedCache(ctx, config.RedisConfig{Address: addr}, 5*time.Second)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer cache.Close()

	account := "test-" + time.Now().Format("150405.000000")
	if err := cache.Set(ctx, account, []relay.Post{{ID: "9", Text: "gm"}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cache.Get(ctx, account)
	if err != nil || !ok || len(got) != 1 || got[0].Text != "gm" {
		t.Fatalf("unexpected get result %+v ok=%v err=%v", got, ok, err)
	}
}

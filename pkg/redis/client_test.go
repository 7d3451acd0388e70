package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/promptability/Website-sub002/pkg/config"
)

func setupClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 2}, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), config.RedisConfig{}, nil); err == nil {
		t.Fatal("expected missing url/address to fail")
	}
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := setupClient(t)

	allowed, count, err := client.FixedWindowAllow(ctx, "ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed with count 1, got allowed=%v count=%d", allowed, count)
	}
	if ttl := mr.TTL(client.RateLimitKey("ip:1.2.3.4")); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute on first increment, got %v", ttl)
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}

	mr.FastForward(time.Minute + time.Second)
	allowed, count, err = client.FixedWindowAllow(ctx, "ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected window to reset, got allowed=%v count=%d", allowed, count)
	}
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	client, mr := setupClient(t)
	key := client.LockKey("stripe_webhook", "evt_1")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquisition, got ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second acquisition to fail, got ok=%v err=%v", ok, err)
	}

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if released {
		t.Fatal("non-owner must not release the lock")
	}

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	if err != nil || !released {
		t.Fatalf("expected owner release, got released=%v err=%v", released, err)
	}
	if mr.Exists(key) {
		t.Fatal("expected key to be gone after release")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("stripe_webhook", "evt_1"); got != "pa:lock:stripe_webhook:evt_1" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := client.RateLimitKey("metered:ip:1.2.3.4"); got != "pa:rate_limit:metered:ip:1.2.3.4" {
		t.Fatalf("unexpected rate limit key %q", got)
	}
	if got := client.buildKey("a", "", " b "); got != "pa:a:b" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on empty client to fail")
	}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("expected setnx on empty client to fail")
	}
}

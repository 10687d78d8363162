package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/redis/go-redis/v9"
)

func newMiniredisClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return NewFromRaw(raw), mr
}

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client, _ := newMiniredisClient(t)

	ok, err := client.SetNX(ctx, "dues:test", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "dues:test", "b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected second setnx to lose")
	}
	value, err := client.Get(ctx, "dues:test")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "a" {
		t.Fatalf("expected original value, got %q", value)
	}
}

func TestSetExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	client, mr := newMiniredisClient(t)

	if err := client.Set(ctx, "dues:ttl", "v", time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := client.Get(ctx, "dues:ttl"); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after expiry, got %v", err)
	}
}

func TestDelRemovesKeys(t *testing.T) {
	ctx := context.Background()
	client, _ := newMiniredisClient(t)

	if err := client.Set(ctx, "dues:a", "1", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := client.Del(ctx, "dues:a"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "dues:a"); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil after del, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("org|actor|POST|/p", "k1"): "dues:idempotency:org|actor|POST|/p:k1",
		client.WebhookEventKey("stripe", "evt_1"):        "dues:webhook:stripe:evt_1",
		client.LockKey("cron:overdue-sweep:2026-03-01"):  "dues:lock:cron:overdue-sweep:2026-03-01",
		client.SweepKey("2026-03-01"):                    "dues:sweep:2026-03-01",
		client.IdempotencyKey("scope", ""):               "dues:idempotency:scope",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected key %s, got %s", want, got)
		}
	}
}

func TestCompareAndDeleteOnlyRemovesOwnValue(t *testing.T) {
	ctx := context.Background()
	client, mr := newMiniredisClient(t)

	if err := client.Set(ctx, "dues:lock:x", "owner-a", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	deleted, err := client.CompareAndDelete(ctx, "dues:lock:x", "owner-b")
	if err != nil || deleted {
		t.Fatalf("expected foreign owner to be refused, deleted=%v err=%v", deleted, err)
	}
	if !mr.Exists("dues:lock:x") {
		t.Fatalf("lock should survive a foreign release")
	}
	deleted, err = client.CompareAndDelete(ctx, "dues:lock:x", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("expected owner release, deleted=%v err=%v", deleted, err)
	}
	if mr.Exists("dues:lock:x") {
		t.Fatalf("lock should be gone")
	}
}

func TestPingFailsWhenServerDown(t *testing.T) {
	client, mr := newMiniredisClient(t)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	mr.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error once server is closed")
	}
}

func TestOptionsFromConfigRequiresAddress(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

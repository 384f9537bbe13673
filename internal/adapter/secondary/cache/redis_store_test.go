package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, time.Minute), mr
}

func TestIdempotencyClaimBindLookup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "k1", time.Hour)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	ok, err = s.Claim(ctx, "k1", time.Hour)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v", ok, err)
	}

	ref, err := s.Lookup(ctx, "k1")
	if err != nil || ref != "" {
		t.Fatalf("lookup while claimed = %q, %v", ref, err)
	}

	if err := s.Bind(ctx, "k1", "123456789", time.Hour); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ref, err = s.Lookup(ctx, "k1")
	if err != nil || ref != "123456789" {
		t.Fatalf("lookup after bind = %q, %v", ref, err)
	}
}

func TestIdempotencyRelease(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if ok, _ := s.Claim(ctx, "k2", time.Hour); !ok {
		t.Fatal("claim failed")
	}
	if err := s.Release(ctx, "k2"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := s.Claim(ctx, "k2", time.Hour); !ok {
		t.Fatal("key should be claimable after release")
	}
}

func TestIdempotencyClaimExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if ok, _ := s.Claim(ctx, "k3", time.Minute); !ok {
		t.Fatal("claim failed")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := s.Claim(ctx, "k3", time.Minute); !ok {
		t.Fatal("expired claim should be reclaimable")
	}
}

func TestListCache(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "RES-1"); ok || err != nil {
		t.Fatalf("cold cache = %v, %v", ok, err)
	}
	if err := s.Set(ctx, "RES-1", []byte(`[{"reference":"1"}]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, ok, err := s.Get(ctx, "RES-1")
	if err != nil || !ok || string(b) != `[{"reference":"1"}]` {
		t.Fatalf("Get = %s, %v, %v", b, ok, err)
	}
	if ttl := mr.TTL(listPrefix + "RES-1"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := s.Invalidate(ctx, "RES-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "RES-1"); ok {
		t.Fatal("list still cached after Invalidate")
	}
}

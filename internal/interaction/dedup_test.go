package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryDeduperRelease(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()
	if ok, _ := d.Claim(ctx, "a", "", time.Minute); !ok {
		t.Fatalf("first claim should succeed")
	}
	if err := d.Release(ctx, "a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := d.Claim(ctx, "a", "", time.Minute); !ok {
		t.Fatalf("claim after release should succeed")
	}
}

func newRedisDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, "test:dedup"), srv
}

func TestRedisDeduperClaim(t *testing.T) {
	d, srv := newRedisDeduper(t)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "k|close|10", "k|close|9", 4*time.Second)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	if !srv.Exists("test:dedup:k|close|10") {
		t.Fatalf("claimed key not stored")
	}
	if ttl := srv.TTL("test:dedup:k|close|10"); ttl != 4*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}
	if ok, _ := d.Claim(ctx, "k|close|10", "k|close|9", 4*time.Second); ok {
		t.Fatalf("repeat claim should fail")
	}
	if ok, _ := d.Claim(ctx, "k|close|11", "k|close|10", 4*time.Second); ok {
		t.Fatalf("claim should fail while previous bucket is live")
	}
	if srv.Exists("test:dedup:k|close|11") {
		t.Fatalf("rejected claim must not store its key")
	}
	if ok, _ := d.Claim(ctx, "other|close|10", "", 4*time.Second); !ok {
		t.Fatalf("claim without previous key should succeed")
	}

	srv.FastForward(5 * time.Second)
	if ok, _ := d.Claim(ctx, "k|close|10", "", 4*time.Second); !ok {
		t.Fatalf("claim after expiry should succeed")
	}
}

func TestRedisDeduperRelease(t *testing.T) {
	d, _ := newRedisDeduper(t)
	ctx := context.Background()
	if ok, _ := d.Claim(ctx, "k", "", time.Minute); !ok {
		t.Fatalf("first claim should succeed")
	}
	if err := d.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := d.Claim(ctx, "k", "", time.Minute); !ok {
		t.Fatalf("claim after release should succeed")
	}
}

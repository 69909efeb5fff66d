package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

func newTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestSubmissionGuardExcludesSecondHolder(t *testing.T) {
	rdb, _ := newTestRedis(t)
	g := NewSubmissionGuard(rdb, "test", time.Minute)
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, err := g.Acquire(ctx, "u1"); err != nil || ok {
		t.Fatalf("second Acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := g.Acquire(ctx, "u2"); !ok {
		t.Fatalf("other user should not be blocked")
	}
	release()
	if _, ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("Acquire after release should succeed")
	}
}

func TestSubmissionGuardExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)
	g := NewSubmissionGuard(rdb, "test", time.Second)
	ctx := context.Background()

	if _, ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("Acquire failed")
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("lock should lapse after ttl")
	}
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	rdb, mr := newTestRedis(t)
	g := NewSubmissionGuard(rdb, "test", time.Second)
	ctx := context.Background()

	stale, _, _ := g.Acquire(ctx, "u1")
	mr.FastForward(2 * time.Second)
	if _, ok, _ := g.Acquire(ctx, "u1"); !ok {
		t.Fatalf("re-Acquire failed")
	}
	stale()
	if _, ok, _ := g.Acquire(ctx, "u1"); ok {
		t.Fatalf("stale release must not free the new holder's lock")
	}
}

func TestNilGuardAlwaysAcquires(t *testing.T) {
	var g *SubmissionGuard
	release, ok, err := g.Acquire(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("nil guard: ok=%v err=%v", ok, err)
	}
	release()
}

func TestStringCache(t *testing.T) {
	rdb, mr := newTestRedis(t)
	c := NewStringCache(rdb, "test", "voice", time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "u1"); ok || err != nil {
		t.Fatalf("Get miss: ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "u1", "EXAVITQu4vr4xnSDxMaL"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("test:voice:u1") {
		t.Fatalf("expected key test:voice:u1")
	}
	v, ok, err := c.Get(ctx, "u1")
	if err != nil || !ok || v != "EXAVITQu4vr4xnSDxMaL" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := c.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "u1"); ok {
		t.Fatalf("expected miss after Delete")
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing REDIS_ADDR error")
	}
}
